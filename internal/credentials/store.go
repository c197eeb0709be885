// Package credentials holds interchangeable backend credentials and
// hands out per-batch bindings without sharing mutable rotation state.
package credentials

import (
	"fmt"
	"strings"
)

// RotationMode selects how a Rotator walks the credential list.
type RotationMode string

const (
	// RotatePerBatch advances round robin once per batch.
	RotatePerBatch RotationMode = "per-batch"
	// RotateFixed always uses the first credential.
	RotateFixed RotationMode = "fixed"
)

const redacted = "[redacted]"

// ParseRotationMode accepts "per-batch" (default) and "fixed".
func ParseRotationMode(s string) (RotationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(RotatePerBatch), "round-robin":
		return RotatePerBatch, nil
	case string(RotateFixed):
		return RotateFixed, nil
	default:
		return "", fmt.Errorf("unknown rotation mode %q", s)
	}
}

// Store is an ordered, read-only list of secrets. The secrets are kept in an
// unexported field and every formatting or marshaling path prints a
// redacted placeholder.
type Store struct {
	secrets []string
	mode    RotationMode
}

// NewStore copies the non-empty secrets into a new Store.
func NewStore(secrets []string, mode RotationMode) *Store {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if mode == "" {
		mode = RotatePerBatch
	}
	return &Store{secrets: kept, mode: mode}
}

// Len returns the number of credentials.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.secrets)
}

// Mode returns the rotation mode.
func (s *Store) Mode() RotationMode {
	if s == nil {
		return RotateFixed
	}
	return s.mode
}

// NewRotator returns an independent cursor starting at offset. Concurrent
// workers each get their own Rotator; the Store itself is never mutated.
func (s *Store) NewRotator(offset int) *Rotator {
	if offset < 0 {
		offset = 0
	}
	return &Rotator{store: s, cursor: offset}
}

// Binding returns the credential at position i (modulo Len).
func (s *Store) Binding(i int) Binding {
	if s.Len() == 0 {
		return Binding{}
	}
	idx := i % len(s.secrets)
	if idx < 0 {
		idx += len(s.secrets)
	}
	return Binding{index: idx, secret: s.secrets[idx], set: true}
}

func (s *Store) String() string {
	return fmt.Sprintf("credentials.Store{count: %d, mode: %s}", s.Len(), s.Mode())
}

func (s *Store) GoString() string { return s.String() }

func (s *Store) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"count":%d,"mode":%q}`, s.Len(), s.Mode())), nil
}

// Rotator is the mutable cursor over a Store. It is not safe for
// concurrent use; each worker owns one.
type Rotator struct {
	store  *Store
	cursor int
}

// Next returns the binding for the next batch.
func (r *Rotator) Next() Binding {
	if r == nil || r.store.Len() == 0 {
		return Binding{}
	}
	if r.store.Mode() == RotateFixed {
		return r.store.Binding(0)
	}
	b := r.store.Binding(r.cursor)
	r.cursor++
	return b
}

// Binding is a value copy of one selected credential.
type Binding struct {
	index  int
	secret string
	set    bool
}

// IsZero reports whether no credential is bound.
func (b Binding) IsZero() bool { return !b.set }

// Index is the credential's position in its Store.
func (b Binding) Index() int { return b.index }

// Secret returns the raw credential for use in request headers.
func (b Binding) Secret() string { return b.secret }

// Or returns b when bound, otherwise a binding for the fallback secret.
func (b Binding) Or(fallback string) Binding {
	if b.set || fallback == "" {
		return b
	}
	return Binding{secret: fallback, set: true}
}

func (b Binding) String() string {
	if !b.set {
		return "credential(none)"
	}
	return fmt.Sprintf("credential#%d(%s)", b.index, redacted)
}

func (b Binding) GoString() string { return b.String() }

func (b Binding) MarshalJSON() ([]byte, error) {
	if !b.set {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`{"index":%d,"secret":%q}`, b.index, redacted)), nil
}
