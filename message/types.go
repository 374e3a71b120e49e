package message

// TypeID identifies a message kind on the wire.
type TypeID uint32

// Enumerated type IDs. Encoders always emit these; decoders also accept the
// legacy alias derived from each kind's legacy name (see LegacyID).
const (
	TypeTimeStamp TypeID = 0x0001
	TypeSequence  TypeID = 0x0002
	TypeChecksum  TypeID = 0x0003

	TypeBinary TypeID = 0x0010
	TypeImage  TypeID = 0x0011
	TypeAudio  TypeID = 0x0012

	TypeVector   TypeID = 0x0020
	TypeArray    TypeID = 0x0021
	TypeEnvelope TypeID = 0x0022
	TypeCoded    TypeID = 0x0023

	TypeKinectColorImage    TypeID = 0x1001
	TypeKinectDepthInfo     TypeID = 0x1002
	TypeKinectDepthImage    TypeID = 0x1003
	TypeKinectInfraredImage TypeID = 0x1004
	TypeKinectAudioInfo     TypeID = 0x1005
	TypeKinectAudio         TypeID = 0x1006
	TypeKinectJoint         TypeID = 0x1007
	TypeKinectBody          TypeID = 0x1008
	TypeKinectBodies        TypeID = 0x1009
	TypeKinectSpeechPhrase  TypeID = 0x100A
	TypeKinectSpeech        TypeID = 0x100B
)

// String returns the registered name of id in the default registry, or its
// hex form when unknown.
func (id TypeID) String() string {
	return defaultRegistry.Name(id)
}
