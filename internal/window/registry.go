package window

import (
	"slices"
	"sort"
)

// NoOwner marks tokens that no caller registered, such as windows adopted
// from a window-manager report.
const NoOwner = -1

// Owner records who registered a token. Packages are the package names the
// owner may report for the window; nil means any.
type Owner struct {
	UID      int      `json:"uid"`
	Packages []string `json:"packages,omitempty"`
}

// MayReport reports whether pkg is one of the owner's reportable packages.
// An owner without a package list accepts nothing here; callers fall back to
// the package directory.
func (o Owner) MayReport(pkg string) bool {
	return pkg != "" && slices.Contains(o.Packages, pkg)
}

type entry struct {
	token Token
	owner Owner
}

// Registry assigns window IDs to producer tokens. Windows owned by processes
// that act across sessions (system UI, the daemon itself) live in the global
// table; everything else is scoped to the session that registered it.
//
// Registry is not safe for concurrent use; the engine guards it with its lock.
type Registry struct {
	nextID   ID
	global   map[ID]entry
	sessions map[int]map[ID]entry
}

// NewRegistry creates an empty registry. The first assigned ID is 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID:   1,
		global:   make(map[ID]entry),
		sessions: make(map[int]map[ID]entry),
	}
}

// Add registers token for owner and returns its new ID. When global is false
// the token is scoped to session.
func (r *Registry) Add(token Token, session int, global bool, owner Owner) ID {
	id := r.nextID
	r.nextID++

	e := entry{token: token, owner: Owner{UID: owner.UID, Packages: slices.Clone(owner.Packages)}}
	if global {
		r.global[id] = e
		return id
	}
	table, ok := r.sessions[session]
	if !ok {
		table = make(map[ID]entry)
		r.sessions[session] = table
	}
	table[id] = e
	return id
}

// Find locates token in the global table or, failing that, in the first
// session table that holds it. It returns the ID, the session it belongs to
// (-1 for global) and its owner.
func (r *Registry) Find(token Token) (ID, int, Owner, bool) {
	if id, ok := findToken(r.global, token); ok {
		return id, -1, r.global[id].owner, true
	}

	sessions := make([]int, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Ints(sessions)
	for _, s := range sessions {
		table := r.sessions[s]
		if id, ok := findToken(table, token); ok {
			return id, s, table[id].owner, true
		}
	}
	return InvalidID, 0, Owner{}, false
}

// Remove unregisters token, found as by Find. It returns the removed ID and
// the session it belonged to (-1 for global).
func (r *Registry) Remove(token Token) (ID, int, bool) {
	id, session, _, ok := r.Find(token)
	if !ok {
		return InvalidID, 0, false
	}
	if session == -1 {
		delete(r.global, id)
	} else {
		delete(r.sessions[session], id)
	}
	return id, session, true
}

// Lookup returns the ID for token, searching the global table first and then
// the table of session. It returns InvalidID when the token is unknown.
func (r *Registry) Lookup(token Token, session int) ID {
	if id, ok := findToken(r.global, token); ok {
		return id
	}
	if id, ok := findToken(r.sessions[session], token); ok {
		return id
	}
	return InvalidID
}

// TokenFor returns the token registered for id, global table first.
func (r *Registry) TokenFor(id ID, session int) (Token, bool) {
	e, ok := r.entryFor(id, session)
	return e.token, ok
}

// OwnerFor returns the owner of window id, global table first.
func (r *Registry) OwnerFor(id ID, session int) (Owner, bool) {
	e, ok := r.entryFor(id, session)
	return e.owner, ok
}

func (r *Registry) entryFor(id ID, session int) (entry, bool) {
	if e, ok := r.global[id]; ok {
		return e, true
	}
	e, ok := r.sessions[session][id]
	return e, ok
}

// Count returns the number of registered tokens in the global table and the
// table of session.
func (r *Registry) Count(session int) (global, scoped int) {
	return len(r.global), len(r.sessions[session])
}

func findToken(table map[ID]entry, token Token) (ID, bool) {
	// Ties are impossible in practice; pick the lowest id for determinism.
	found := InvalidID
	for id, e := range table {
		if e.token == token && (found == InvalidID || id < found) {
			found = id
		}
	}
	return found, found != InvalidID
}
