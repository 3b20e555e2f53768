package shared

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestInfo carries the actor and request metadata of a command. It is passed
// explicitly down to the audit logger and stored verbatim in request_info.
type RequestInfo struct {
	ActorID       int64  `json:"actor_id"`
	ActorUsername string `json:"actor_username,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	Method        string `json:"method,omitempty"`
	Path          string `json:"path,omitempty"`
}

// RequestInfoFromRequest builds RequestInfo from the request and its principal.
// RealIP and RequestID middleware must run first.
func RequestInfoFromRequest(r *http.Request) RequestInfo {
	info := RequestInfo{
		RequestID: middleware.GetReqID(r.Context()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		info.ActorID = p.UserID
		info.ActorUsername = p.Username
	}
	return info
}

// Actor returns the actor id as a nullable stamp value.
func (i RequestInfo) Actor() *int64 {
	if i.ActorID <= 0 {
		return nil
	}
	id := i.ActorID
	return &id
}
