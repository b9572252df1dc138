package contextstore

import (
	"log"
	"reflect"
)

// IdentityField is the field the domain and implementation sub-contexts
// must agree on.
const IdentityField = "entity"

// Validate cross-checks the domain and implementation sub-contexts of a
// session. It fails open: a missing sub-context or a missing identity field
// counts as consistent. A mismatch is logged and reported as false.
func (s *Store) Validate(sessionID string) bool {
	domain, ok := s.Get(sessionID, KeyDomain)
	if !ok {
		return true
	}
	impl, ok := s.Get(sessionID, KeyImplementation)
	if !ok {
		return true
	}

	dv, ok := identity(domain)
	if !ok {
		return true
	}
	iv, ok := identity(impl)
	if !ok {
		return true
	}
	if !reflect.DeepEqual(dv, iv) {
		log.Printf("[contextstore] session %s: %s mismatch between domain (%v) and implementation (%v)",
			sessionID, IdentityField, dv, iv)
		return false
	}
	return true
}

func identity(v any) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		id, ok := m[IdentityField]
		return id, ok
	case map[string]string:
		id, ok := m[IdentityField]
		return id, ok
	default:
		return nil, false
	}
}
