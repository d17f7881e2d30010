package capability

import (
	"strings"
	"sync"
)

// Permissions is what a session is allowed to do.
type Permissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

// PermissionSource reports the permission set of a session.
type PermissionSource interface {
	Permissions(sessionID string) Permissions
}

// Roles narrows backend capabilities by the role each session authenticated
// with. Sessions without a role get whatever the backend allows.
type Roles struct {
	provider Provider

	mu    sync.RWMutex
	roles map[string]string
}

func NewRoles(provider Provider) *Roles {
	return &Roles{provider: provider, roles: make(map[string]string)}
}

// Assign binds a role to a session. An empty role removes the binding.
func (r *Roles) Assign(sessionID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == "" {
		delete(r.roles, sessionID)
		return
	}
	r.roles[sessionID] = strings.ToLower(role)
}

func (r *Roles) Forget(sessionID string) {
	r.Assign(sessionID, "")
}

func (r *Roles) Permissions(sessionID string) Permissions {
	f := r.provider.Flags()
	p := Permissions{Read: f.Read, Write: f.Write, Delete: f.Delete}

	r.mu.RLock()
	role := r.roles[sessionID]
	r.mu.RUnlock()

	switch role {
	case "viewer", "readonly", "read-only":
		p.Write, p.Delete = false, false
	case "editor":
		p.Delete = false
	}
	return p
}
