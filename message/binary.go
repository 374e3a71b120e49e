package message

import (
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Binary is a raw byte buffer that either owns its storage or borrows it
// from someone else. On the wire its header is the size (u32) and its
// payload the bytes.
type Binary struct {
	data     []byte
	owned    bool
	released bool
	size     uint32 // header value pending UnpackPayload
}

// NewBinary allocates an owned, zeroed buffer of n bytes.
func NewBinary(n int) *Binary {
	return &Binary{data: make([]byte, n), owned: true}
}

// Own wraps b and takes ownership of it.
func Own(b []byte) *Binary {
	return &Binary{data: b, owned: true}
}

// Borrow wraps b without taking ownership. The caller keeps b alive.
func Borrow(b []byte) *Binary {
	return &Binary{data: b}
}

// Type implements Message.
func (b *Binary) Type() TypeID { return TypeBinary }

// Bytes returns the buffer contents.
func (b *Binary) Bytes() []byte { return b.data }

// Len returns the buffer size.
func (b *Binary) Len() int { return len(b.data) }

// Owned reports whether the buffer owns its storage.
func (b *Binary) Owned() bool { return b.owned }

// Clone returns an owned deep copy.
func (b *Binary) Clone() *Binary {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return Own(data)
}

// Move transfers the storage and its ownership to a new Binary and leaves b
// empty and non-owning.
func (b *Binary) Move() *Binary {
	moved := &Binary{data: b.data, owned: b.owned}
	b.data = nil
	b.owned = false
	return moved
}

// Release drops the storage. Releasing owned storage twice is an error;
// releasing a borrowed buffer only detaches it.
func (b *Binary) Release() error {
	if b.released {
		return errors.WrapInvalid(fmt.Errorf("buffer already released"), "Binary", "Release", "release owned storage")
	}
	if b.owned {
		b.released = true
		b.owned = false
	}
	b.data = nil
	return nil
}

// PackHeader writes the size.
func (b *Binary) PackHeader(w *Writer) { w.Uint32(uint32(len(b.data))) }

// PackPayload writes the bytes.
func (b *Binary) PackPayload(w *Writer) { w.Raw(b.data) }

// UnpackHeader reads the size.
func (b *Binary) UnpackHeader(r *Reader) error {
	b.size = r.Uint32()
	return r.Err()
}

// UnpackPayload copies size bytes into freshly owned storage.
func (b *Binary) UnpackPayload(r *Reader) error {
	src := r.Bytes(int(b.size))
	if err := r.Err(); err != nil {
		return err
	}
	b.data = make([]byte, len(src))
	copy(b.data, src)
	b.owned = true
	b.released = false
	return nil
}
