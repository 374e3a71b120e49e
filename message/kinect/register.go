package kinect

import (
	"github.com/usc-rasc/kinect-bridge2/message"
)

// Kinds lists the kinds defined by this package.
func Kinds() []message.Kind {
	return []message.Kind{
		{ID: message.TypeKinectColorImage, Name: "kinect_color", Legacy: "KinectColorImageMessage",
			New: func() message.Message { return &ColorImage{} }},
		{ID: message.TypeKinectDepthInfo, Name: "kinect_depth_info", Legacy: "KinectDepthImageInfoMessage",
			New: func() message.Message { return &DepthInfo{} }},
		{ID: message.TypeKinectDepthImage, Name: "kinect_depth", Legacy: "KinectDepthImageMessage",
			New: func() message.Message { return &DepthImage{} }},
		{ID: message.TypeKinectInfraredImage, Name: "kinect_infrared", Legacy: "KinectInfraredImageMessage",
			New: func() message.Message { return &InfraredImage{} }},
		{ID: message.TypeKinectAudioInfo, Name: "kinect_audio_info", Legacy: "KinectAudioInfoMessage",
			New: func() message.Message { return &AudioInfo{} }},
		{ID: message.TypeKinectAudio, Name: "kinect_audio", Legacy: "KinectAudioMessage",
			New: func() message.Message { return &Audio{} }},
		{ID: message.TypeKinectJoint, Name: "kinect_joint", Legacy: "KinectJointMessage",
			New: func() message.Message { return &Joint{} }},
		{ID: message.TypeKinectBody, Name: "kinect_body", Legacy: "KinectBodyMessage",
			New: func() message.Message { return NewBody() }},
		{ID: message.TypeKinectBodies, Name: "kinect_bodies", Legacy: "KinectBodiesMessage",
			New: func() message.Message { return NewBodies() }},
		{ID: message.TypeKinectSpeechPhrase, Name: "kinect_speech_phrase", Legacy: "KinectSpeechPhraseMessage",
			New: func() message.Message { return &SpeechPhrase{} }},
		{ID: message.TypeKinectSpeech, Name: "kinect_speech", Legacy: "KinectSpeechMessage",
			New: func() message.Message { return NewSpeech() }},
	}
}

func init() {
	for _, k := range Kinds() {
		message.Default().MustRegister(k)
	}
}
