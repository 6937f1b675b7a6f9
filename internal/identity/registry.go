// Package identity maintains the in-memory user -> {public key, roles}
// projection described in §4.2. The registry is authoritative in memory but
// is itself derived by replaying administrative records from the chain: it
// is never the source of truth, and an implementation must be able to
// rebuild it identically from a cold replay (§9 "derived state vs stored
// state").
package identity

import (
	"crypto/ed25519"
	"errors"
	"sort"
)

// ErrUserExists is returned by CreateUser when the name is already taken.
var ErrUserExists = errors.New("identity: user already exists")

// ErrUnknownUser is returned by any lookup against a name the registry has
// not seen a user_create record for.
var ErrUnknownUser = errors.New("identity: unknown user")

type user struct {
	name      string
	publicKey ed25519.PublicKey
	roles     map[string]struct{}
}

// Registry is the derived user -> {public key, roles} projection.
//
// It carries no persistence of its own. Callers rebuild it by calling
// Apply for every user_create/user_add_role record in chain order, starting
// from an empty Registry, each time the database is opened (ledger.Open),
// and call Apply for each new administrative record after a successful
// append.
type Registry struct {
	users map[string]*user
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{users: make(map[string]*user)}
}

// CreateUser registers name with publicKey and no roles. Fails if name
// already exists.
func (r *Registry) CreateUser(name string, publicKey ed25519.PublicKey) error {
	if _, ok := r.users[name]; ok {
		return ErrUserExists
	}
	key := make(ed25519.PublicKey, len(publicKey))
	copy(key, publicKey)
	r.users[name] = &user{name: name, publicKey: key, roles: make(map[string]struct{})}
	return nil
}

// AddRole grants role to name. Fails if name is absent.
func (r *Registry) AddRole(name, role string) error {
	u, ok := r.users[name]
	if !ok {
		return ErrUnknownUser
	}
	u.roles[role] = struct{}{}
	return nil
}

// RolesOf returns the sorted roles held by name.
func (r *Registry) RolesOf(name string) ([]string, error) {
	u, ok := r.users[name]
	if !ok {
		return nil, ErrUnknownUser
	}
	roles := make([]string, 0, len(u.roles))
	for role := range u.roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

// HasRole reports whether name currently holds role, without the
// allocation RolesOf incurs to build a full slice of every role held.
func (r *Registry) HasRole(name, role string) bool {
	u, ok := r.users[name]
	if !ok {
		return false
	}
	_, ok = u.roles[role]
	return ok
}

// KeyOf returns the public key registered for name.
func (r *Registry) KeyOf(name string) (ed25519.PublicKey, error) {
	u, ok := r.users[name]
	if !ok {
		return nil, ErrUnknownUser
	}
	key := make(ed25519.PublicKey, len(u.publicKey))
	copy(key, u.publicKey)
	return key, nil
}

// Exists reports whether name has been created.
func (r *Registry) Exists(name string) bool {
	_, ok := r.users[name]
	return ok
}

// Names returns every registered user name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
