package landmark

// Face Mesh landmark indices (468-point topology).
// See: https://github.com/google-ai-edge/mediapipe/blob/master/mediapipe/modules/face_geometry/data/canonical_face_model_uv_visualization.png
const (
	NoseTip       = 1
	Forehead      = 10
	UpperLipInner = 13
	LowerLipInner = 14
	MouthLeft     = 61
	MouthRight    = 291
	Chin          = 152
	LeftCheek     = 234
	RightCheek    = 454
	LeftEyeOuter  = 33
	RightEyeOuter = 263
	NumMeshPoints = 468
)

// Eye contours ordered p0..p5 for the aspect-ratio formula: outer corner,
// two upper lid points, inner corner, two lower lid points.
var (
	LeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// Eyebrow clusters, five points each.
var (
	LeftBrow  = []int{70, 63, 105, 66, 107}
	RightBrow = []int{336, 296, 334, 293, 300}
)

// Outline paths used by the overlay mesh.
var (
	FaceOvalPath = []int{
		10, 338, 297, 332, 284, 251, 389, 356, 454, 323, 361, 288,
		397, 365, 379, 378, 400, 377, 152, 148, 176, 149, 150, 136,
		172, 58, 132, 93, 234, 127, 162, 21, 54, 103, 67, 109,
	}
	LeftEyePath = []int{
		33, 246, 161, 160, 159, 158, 157, 173, 133, 155, 154, 153, 145, 144, 163, 7,
	}
	RightEyePath = []int{
		263, 466, 388, 387, 386, 385, 384, 398, 362, 382, 381, 380, 374, 373, 390, 249,
	}
	LipsOuterPath = []int{
		61, 185, 40, 39, 37, 0, 267, 269, 270, 409, 291,
		375, 321, 405, 314, 17, 84, 181, 91, 146,
	}
	LipsInnerPath = []int{
		78, 191, 80, 81, 82, 13, 312, 311, 310, 415, 308,
		324, 318, 402, 317, 14, 87, 178, 88, 95,
	}
	LeftBrowPath  = []int{46, 53, 52, 65, 55, 70, 63, 105, 66, 107}
	RightBrowPath = []int{276, 283, 282, 295, 285, 300, 293, 334, 296, 336}
)
