package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/usc-rasc/kinect-bridge2/errors"
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Set resolves codecs by encoding ID.
type Set struct {
	mu      sync.RWMutex
	byID    map[uint32]Codec
	aliases map[uint32]uint32
}

// NewSet creates a set holding codecs. It panics on duplicate IDs, which
// is a programming error.
func NewSet(codecs ...Codec) *Set {
	s := &Set{
		byID:    make(map[uint32]Codec),
		aliases: make(map[uint32]uint32),
	}
	for _, c := range codecs {
		if err := s.Add(c); err != nil {
			panic(err)
		}
	}
	return s
}

// DefaultSet holds binary, gzip at the default level and zstd at the
// default level.
func DefaultSet() *Set {
	gz, _ := NewGzip(DefaultGzipLevel)
	zs, _ := NewZstd(0)
	return NewSet(Binary{}, gz, zs)
}

// Add registers c. c's ID and legacy alias must not collide with any
// registered ID or alias.
func (s *Set) Add(c Codec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID()]; ok {
		return errors.WrapInvalid(fmt.Errorf("encoding %#04x already registered", c.ID()), "Set", "Add", "duplicate id check")
	}
	if _, ok := s.aliases[c.ID()]; ok {
		return errors.WrapInvalid(fmt.Errorf("encoding %#04x collides with a legacy alias", c.ID()), "Set", "Add", "duplicate id check")
	}
	if ln, ok := c.(legacyNamer); ok {
		alias := uint32(message.LegacyID(ln.LegacyName()))
		_, idTaken := s.byID[alias]
		_, aliasTaken := s.aliases[alias]
		if idTaken || aliasTaken || alias == c.ID() {
			return errors.WrapInvalid(fmt.Errorf("legacy alias %#08x of %q collides", alias, ln.LegacyName()), "Set", "Add", "legacy alias check")
		}
		s.aliases[alias] = c.ID()
	}
	s.byID[c.ID()] = c
	return nil
}

// Get returns the codec for id, accepting legacy aliases.
func (s *Set) Get(id uint32) (Codec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if canon, ok := s.aliases[id]; ok {
		id = canon
	}
	c, ok := s.byID[id]
	return c, ok
}

// Decode decodes c with the codec named in its header.
func (s *Set) Decode(c *message.Coded) ([]byte, error) {
	dec, ok := s.Get(c.Encoding)
	if !ok {
		return nil, errors.Decode(fmt.Errorf("unknown encoding %#08x", c.Encoding), "Set", "Decode", "resolve codec")
	}
	return dec.Decode(c)
}

// Name returns the codec name for id, or its hex form when unknown.
func (s *Set) Name(id uint32) string {
	if c, ok := s.Get(id); ok {
		return c.Name()
	}
	return fmt.Sprintf("%#08x", id)
}

// IDs returns the registered encoding IDs in ascending order.
func (s *Set) IDs() []uint32 {
	s.mu.RLock()
	ids := make([]uint32, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
