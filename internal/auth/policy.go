package auth

import (
	"net/http"
	"strings"
)

// Policy maps requests to the role required to perform them.
type Policy struct {
	exemptPaths    map[string]struct{}
	exemptPrefixes []string
}

// NewDefaultPolicy builds the policy with the given unauthenticated paths and
// path prefixes.
func NewDefaultPolicy(exemptPaths, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{exemptPaths: set, exemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether the request skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.exemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.exemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. Triggering a detector pass
// is an operator action, recomputing baselines is admin-only, and reports are
// readable by any authenticated role.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}

	switch path := r.URL.Path; {
	case strings.HasPrefix(path, "/api/v1/monitor/run/"):
		return RoleOperator, true
	case path == "/api/v1/baseline/run":
		return RoleAdmin, true
	case path == "/api/v1/reports/sales":
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/"):
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return RoleViewer, true
		default:
			return RoleOperator, true
		}
	}
	return "", false
}
