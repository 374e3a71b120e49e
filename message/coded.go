package message

// Coded is a message after encoding: the codec that produced it, the type
// of the message inside, its decoded size and the opaque encoded bytes.
//
// Layout: encoding u32, payload type u32, decoded size u32, then the
// payload as length u32 and bytes.
type Coded struct {
	Encoding    uint32
	PayloadType TypeID
	DecodedSize uint32
	Data        []byte
}

func (c *Coded) Type() TypeID { return TypeCoded }

func (c *Coded) PackHeader(w *Writer) {
	w.Uint32(c.Encoding)
	w.Uint32(uint32(c.PayloadType))
	w.Uint32(c.DecodedSize)
}

func (c *Coded) PackPayload(w *Writer) {
	w.Uint32(uint32(len(c.Data)))
	w.Raw(c.Data)
}

func (c *Coded) UnpackHeader(r *Reader) error {
	c.Encoding = r.Uint32()
	c.PayloadType = TypeID(r.Uint32())
	c.DecodedSize = r.Uint32()
	return r.Err()
}

// UnpackPayload reads the encoded bytes. Data aliases the reader's input.
func (c *Coded) UnpackPayload(r *Reader) error {
	n := r.Uint32()
	c.Data = r.Bytes(int(n))
	return r.Err()
}

// CodedHeaderSize is the fixed size of a Coded message before its bytes.
const CodedHeaderSize = 16

// Size returns the packed size of c.
func (c *Coded) Size() int {
	return CodedHeaderSize + len(c.Data)
}

// AppendCoded packs c onto dst.
func AppendCoded(dst []byte, c *Coded) []byte {
	w := &Writer{buf: dst}
	c.PackHeader(w)
	c.PackPayload(w)
	return w.Bytes()
}

// ParseCoded unpacks a Coded message that spans all of body.
func ParseCoded(body []byte) (*Coded, error) {
	c := &Coded{}
	if err := Unmarshal(body, c); err != nil {
		return nil, err
	}
	return c, nil
}
