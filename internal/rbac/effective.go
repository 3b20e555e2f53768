package rbac

import "sort"

// EffectiveSet is (base ∪ granted) \ denied for one user.
type EffectiveSet struct {
	base    map[string]struct{}
	granted map[string]struct{}
	denied  map[string]struct{}
}

// ComputeEffective combines role-granted names with user overrides. Precedence
// is deny > grant > role: a deny override always wins, and a permission both
// granted and role-held reports the grant.
func ComputeEffective(base []string, overrides []Override) EffectiveSet {
	set := EffectiveSet{
		base:    make(map[string]struct{}, len(base)),
		granted: make(map[string]struct{}),
		denied:  make(map[string]struct{}),
	}
	for _, name := range base {
		set.base[normalizePermission(name)] = struct{}{}
	}
	for _, o := range overrides {
		name := normalizePermission(o.Permission)
		if o.Allowed {
			set.granted[name] = struct{}{}
		} else {
			set.denied[name] = struct{}{}
		}
	}
	return set
}

// Decide resolves one permission against the set.
func (s EffectiveSet) Decide(permission string) Decision {
	name := normalizePermission(permission)
	d := Decision{Permission: name}
	if _, ok := s.denied[name]; ok {
		d.Reason = ReasonOverrideDeny
		return d
	}
	if _, ok := s.granted[name]; ok {
		d.Allowed, d.Reason = true, ReasonOverrideGrant
		return d
	}
	if _, ok := s.base[name]; ok {
		d.Allowed, d.Reason = true, ReasonRoleGrant
		return d
	}
	d.Reason = ReasonPermissionMissing
	return d
}

// Has reports whether permission is effective.
func (s EffectiveSet) Has(permission string) bool {
	return s.Decide(permission).Allowed
}

// Permissions lists the effective permissions with their source, sorted by name.
func (s EffectiveSet) Permissions() []EffectivePermission {
	out := make([]EffectivePermission, 0, len(s.base)+len(s.granted))
	for name := range s.granted {
		if _, denied := s.denied[name]; !denied {
			out = append(out, EffectivePermission{Name: name, Source: SourceGrant})
		}
	}
	for name := range s.base {
		_, denied := s.denied[name]
		_, granted := s.granted[name]
		if !denied && !granted {
			out = append(out, EffectivePermission{Name: name, Source: SourceRole})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names lists the effective permission names, sorted.
func (s EffectiveSet) Names() []string {
	perms := s.Permissions()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}

// Denied lists the deny overrides, sorted.
func (s EffectiveSet) Denied() []string {
	out := make([]string, 0, len(s.denied))
	for name := range s.denied {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
