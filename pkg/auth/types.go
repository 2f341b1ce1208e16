// Package auth provides tenant-scoped request authentication: JWT
// validation and the middleware that binds the caller's principal into
// the request context. The Principal contract and context accessors live
// in the api package so handlers never depend on auth.
package auth

// BasePrincipal is the standard api.Principal implementation built from
// JWT claims.
type BasePrincipal struct {
	ID       string
	TenantID string
	Roles    []string
}

func (p *BasePrincipal) GetID() string       { return p.ID }
func (p *BasePrincipal) GetTenantID() string { return p.TenantID }
func (p *BasePrincipal) GetRoles() []string  { return p.Roles }

// HasRole reports whether the principal carries the given role.
func (p *BasePrincipal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
