package message

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Factory creates an empty message of one kind, ready to be unpacked into.
type Factory func() Message

// Kind describes a registered message kind.
type Kind struct {
	ID   TypeID
	Name string
	// Legacy is the name older peers hashed into their type IDs.
	// Empty disables the alias.
	Legacy string
	New    Factory
}

var legacyCache sync.Map // string -> TypeID

// LegacyID returns the first four bytes of MD5(name), big-endian. Results
// are cached.
func LegacyID(name string) TypeID {
	if v, ok := legacyCache.Load(name); ok {
		return v.(TypeID)
	}
	sum := md5.Sum([]byte(name))
	id := TypeID(binary.BigEndian.Uint32(sum[:4]))
	legacyCache.Store(name, id)
	return id
}

// Registry maps type IDs to kinds.
type Registry struct {
	mu      sync.RWMutex
	byID    map[TypeID]*Kind
	byName  map[string]*Kind
	aliases map[TypeID]TypeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[TypeID]*Kind),
		byName:  make(map[string]*Kind),
		aliases: make(map[TypeID]TypeID),
	}
}

// Register adds k. Duplicate IDs or names, and legacy aliases that collide
// with any known ID, are rejected.
func (r *Registry) Register(k Kind) error {
	if k.New == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function validation")
	}
	if k.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "name validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[k.ID]; ok {
		return errors.WrapInvalid(
			fmt.Errorf("type id %#04x already registered as %q", uint32(k.ID), existing.Name),
			"Registry", "Register", "duplicate id check")
	}
	if _, ok := r.aliases[k.ID]; ok {
		return errors.WrapInvalid(
			fmt.Errorf("type id %#04x collides with a legacy alias", uint32(k.ID)),
			"Registry", "Register", "duplicate id check")
	}
	if _, ok := r.byName[k.Name]; ok {
		return errors.WrapInvalid(
			fmt.Errorf("kind %q already registered", k.Name),
			"Registry", "Register", "duplicate name check")
	}

	if k.Legacy != "" {
		alias := LegacyID(k.Legacy)
		_, idTaken := r.byID[alias]
		_, aliasTaken := r.aliases[alias]
		if idTaken || aliasTaken || alias == k.ID {
			return errors.WrapInvalid(
				fmt.Errorf("legacy alias %#08x of %q collides with a registered id", uint32(alias), k.Legacy),
				"Registry", "Register", "legacy alias check")
		}
		r.aliases[alias] = k.ID
	}

	kind := k
	r.byID[k.ID] = &kind
	r.byName[k.Name] = &kind
	return nil
}

// MustRegister is Register that panics on error. Intended for init.
func (r *Registry) MustRegister(k Kind) {
	if err := r.Register(k); err != nil {
		panic(err)
	}
}

// Canonical maps a legacy alias to its enumerated ID. Unknown IDs are
// returned unchanged.
func (r *Registry) Canonical(id TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, ok := r.aliases[id]; ok {
		return canon
	}
	return id
}

// Lookup resolves id, accepting legacy aliases.
func (r *Registry) Lookup(id TypeID) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, ok := r.aliases[id]; ok {
		id = canon
	}
	k, ok := r.byID[id]
	if !ok {
		return Kind{}, false
	}
	return *k, true
}

// LookupName resolves a kind by name.
func (r *Registry) LookupName(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byName[name]
	if !ok {
		return Kind{}, false
	}
	return *k, true
}

// New creates an empty message for id.
func (r *Registry) New(id TypeID) (Message, error) {
	k, ok := r.Lookup(id)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %#08x", errors.ErrUnknownType, uint32(id)),
			"Registry", "New", "resolve type id")
	}
	return k.New(), nil
}

// Name returns the kind name for id, or its hex form when unknown.
func (r *Registry) Name(id TypeID) string {
	if k, ok := r.Lookup(id); ok {
		return k.Name
	}
	return fmt.Sprintf("%#08x", uint32(id))
}

// Kinds returns every registered kind ordered by ID.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	kinds := make([]Kind, 0, len(r.byID))
	for _, k := range r.byID {
		kinds = append(kinds, *k)
	}
	r.mu.RUnlock()

	sort.Slice(kinds, func(i, j int) bool { return kinds[i].ID < kinds[j].ID })
	return kinds
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry. Builtin kinds register here at
// init; other packages add theirs from their own init.
func Default() *Registry {
	return defaultRegistry
}

// Register adds k to the default registry.
func Register(k Kind) error {
	return defaultRegistry.Register(k)
}
