package kinect

import (
	"fmt"

	"github.com/usc-rasc/kinect-bridge2/message"
)

// JointCount is the number of joints in a tracked body.
const JointCount = 25

// JointType indexes a joint within a body.
type JointType uint8

const (
	SpineBase JointType = iota
	SpineMid
	Neck
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight
	SpineShoulder
	HandTipLeft
	ThumbLeft
	HandTipRight
	ThumbRight
)

var jointNames = [JointCount]string{
	"spine_base", "spine_mid", "neck", "head",
	"shoulder_left", "elbow_left", "wrist_left", "hand_left",
	"shoulder_right", "elbow_right", "wrist_right", "hand_right",
	"hip_left", "knee_left", "ankle_left", "foot_left",
	"hip_right", "knee_right", "ankle_right", "foot_right",
	"spine_shoulder", "handtip_left", "thumb_left", "handtip_right", "thumb_right",
}

func (j JointType) String() string {
	if int(j) < len(jointNames) {
		return jointNames[j]
	}
	return fmt.Sprintf("joint(%d)", uint8(j))
}

// TrackingState of a joint.
type TrackingState uint8

const (
	NotTracked TrackingState = iota
	Inferred
	Tracked
)

// HandState of a tracked hand.
type HandState uint8

const (
	HandUnknown HandState = iota
	HandNotTracked
	HandOpen
	HandClosed
	HandLasso
)

// Joint is one skeletal joint: position in metres, orientation as a
// quaternion (x, y, z, w).
type Joint struct {
	JointType   JointType
	State       TrackingState
	Position    [3]float32
	Orientation [4]float32
}

func (m *Joint) Type() message.TypeID               { return message.TypeKinectJoint }
func (m *Joint) PackHeader(*message.Writer)         {}
func (m *Joint) UnpackHeader(*message.Reader) error { return nil }

func (m *Joint) PackPayload(w *message.Writer) {
	w.Uint8(uint8(m.JointType))
	w.Uint8(uint8(m.State))
	for _, v := range m.Position {
		w.Float32(v)
	}
	for _, v := range m.Orientation {
		w.Float32(v)
	}
}

func (m *Joint) UnpackPayload(r *message.Reader) error {
	m.JointType = JointType(r.Uint8())
	m.State = TrackingState(r.Uint8())
	for i := range m.Position {
		m.Position[i] = r.Float32()
	}
	for i := range m.Orientation {
		m.Orientation[i] = r.Float32()
	}
	return r.Err()
}

// Body is one tracked skeleton.
type Body struct {
	IsTracked  bool
	HandLeft   HandState
	HandRight  HandState
	TrackingID uint64
	Joints     *message.Array[*Joint]
}

// NewBody returns a body with JointCount joints, each typed by its index.
func NewBody() *Body {
	b := &Body{Joints: message.NewArray(JointCount, func() *Joint { return &Joint{} })}
	for i, j := range b.Joints.Elements {
		j.JointType = JointType(i)
	}
	return b
}

// Joint returns the joint of type t.
func (m *Body) Joint(t JointType) *Joint {
	return m.Joints.Elements[t]
}

func (m *Body) Type() message.TypeID { return message.TypeKinectBody }

func (m *Body) Validate() error { return message.Validate(m.Joints) }

func (m *Body) PackHeader(w *message.Writer) {
	var tracked uint8
	if m.IsTracked {
		tracked = 1
	}
	w.Uint8(tracked)
	w.Uint8(uint8(m.HandLeft))
	w.Uint8(uint8(m.HandRight))
	w.Uint64(m.TrackingID)
	m.Joints.PackHeader(w)
}

func (m *Body) PackPayload(w *message.Writer) { m.Joints.PackPayload(w) }

func (m *Body) UnpackHeader(r *message.Reader) error {
	m.IsTracked = r.Uint8() != 0
	m.HandLeft = HandState(r.Uint8())
	m.HandRight = HandState(r.Uint8())
	m.TrackingID = r.Uint64()
	if err := r.Err(); err != nil {
		return err
	}
	if m.Joints == nil {
		m.Joints = message.NewArray(JointCount, func() *Joint { return &Joint{} })
	}
	return m.Joints.UnpackHeader(r)
}

func (m *Body) UnpackPayload(r *message.Reader) error { return m.Joints.UnpackPayload(r) }

// Bodies is every body the device reported in one frame.
type Bodies struct {
	Bodies *message.Vector[*Body]
	Stamp  message.TimeStamp
}

// NewBodies returns an empty frame.
func NewBodies() *Bodies {
	return &Bodies{Bodies: message.NewVector(NewBody)}
}

func (m *Bodies) Type() message.TypeID { return message.TypeKinectBodies }

// Components returns the packed parts in wire order.
func (m *Bodies) Components() message.Composite {
	if m.Bodies == nil {
		m.Bodies = message.NewVector(NewBody)
	}
	return message.Composite{m.Bodies, &m.Stamp}
}

func (m *Bodies) Validate() error                       { return m.Components().Validate() }
func (m *Bodies) PackHeader(*message.Writer)            {}
func (m *Bodies) PackPayload(w *message.Writer)         { m.Components().PackPayload(w) }
func (m *Bodies) UnpackHeader(*message.Reader) error    { return nil }
func (m *Bodies) UnpackPayload(r *message.Reader) error { return m.Components().UnpackPayload(r) }
