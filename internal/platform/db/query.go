package db

import "strings"

// OrderBy renders an ORDER BY clause from a whitelisted sort key. Unknown keys
// fall back to fallback; id is always the tie breaker.
func OrderBy(sortBy, dir string, columns map[string]string, fallback string) string {
	column, ok := columns[strings.ToLower(strings.TrimSpace(sortBy))]
	if !ok {
		column = fallback
	}
	direction := "ASC"
	if strings.EqualFold(dir, "desc") {
		direction = "DESC"
	}
	clause := " ORDER BY " + column + " " + direction
	if column != "id" {
		clause += ", id " + direction
	}
	return clause
}

// LikePattern wraps a search term for ILIKE, escaping wildcards.
func LikePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}
