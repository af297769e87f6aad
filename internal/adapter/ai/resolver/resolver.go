// Package resolver maps logical model names to concrete backend ids and
// remembers which fallback last worked for each name.
package resolver

import (
	"sort"
	"sync"
)

// Resolver is safe for concurrent use. Its success memory lives for the
// lifetime of the value and is never persisted.
type Resolver struct {
	cat Catalog

	mu     sync.RWMutex
	memory map[string]string
}

// New copies cat so later caller mutations do not leak in.
func New(cat Catalog) *Resolver {
	c := Catalog{
		Standard: make(map[string]string, len(cat.Standard)),
		Free:     make(map[string]string, len(cat.Free)),
		Fallback: append([]string(nil), cat.Fallback...),
	}
	for k, v := range cat.Standard {
		c.Standard[k] = v
	}
	for k, v := range cat.Free {
		c.Free[k] = v
	}
	return &Resolver{cat: c, memory: make(map[string]string)}
}

// Resolve picks the concrete model for logical. Order: remembered success,
// free-tier mapping (when preferFree), standard mapping, then logical itself.
func (r *Resolver) Resolve(logical string, preferFree bool) string {
	r.mu.RLock()
	m, ok := r.memory[logical]
	r.mu.RUnlock()
	if ok {
		return m
	}
	return r.Plain(logical, preferFree)
}

// Plain resolves without consulting the success memory.
func (r *Resolver) Plain(logical string, preferFree bool) string {
	if preferFree {
		if m, ok := r.cat.Free[logical]; ok {
			return m
		}
	}
	if m, ok := r.cat.Standard[logical]; ok {
		return m
	}
	return logical
}

// RememberSuccess records concrete as the sticky choice for logical, but only
// when it differs from the plain mapping. A success on the plain mapping
// clears any older sticky choice instead. It reports whether it stored.
func (r *Resolver) RememberSuccess(logical, concrete string, preferFree bool) bool {
	if logical == "" || concrete == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if concrete == r.Plain(logical, preferFree) {
		delete(r.memory, logical)
		return false
	}
	r.memory[logical] = concrete
	return true
}

// Remembered returns a copy of the success memory.
func (r *Resolver) Remembered() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.memory))
	for k, v := range r.memory {
		out[k] = v
	}
	return out
}

// Forget drops every remembered success.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.memory = make(map[string]string)
	r.mu.Unlock()
}

// LogicalFor finds the logical name whose standard mapping is concrete.
// When several names share an id the alphabetically first wins so the
// answer is stable.
func (r *Resolver) LogicalFor(concrete string) (string, bool) {
	var names []string
	for k, v := range r.cat.Standard {
		if v == concrete {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}

// Known reports whether logical is a catalog name.
func (r *Resolver) Known(logical string) bool {
	_, ok := r.cat.Standard[logical]
	return ok
}

// Fallback returns a copy of the roster.
func (r *Resolver) Fallback() []string {
	return append([]string(nil), r.cat.Fallback...)
}

// Catalog returns a copy of the mapping tables.
func (r *Resolver) Catalog() Catalog {
	return New(r.cat).cat
}
