package landmarks

// Body landmark indices (33-point topology).
const (
	PoseNose          = 0
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftElbow     = 13
	PoseRightElbow    = 14
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24
	PoseCount         = 33
)

// Face mesh landmark indices used by the face solve.
const (
	FaceTop           = 10
	FaceChin          = 152
	FaceLeftCheek     = 234
	FaceRightCheek    = 454
	FaceLeftEyeOuter  = 33
	FaceLeftEyeInner  = 133
	FaceLeftLidUpper  = 159
	FaceLeftLidLower  = 145
	FaceRightEyeOuter = 263
	FaceRightEyeInner = 362
	FaceRightLidUpper = 386
	FaceRightLidLower = 374
	FaceUpperLip      = 13
	FaceLowerLip      = 14
	FaceMouthLeft     = 61
	FaceMouthRight    = 291
	FaceCount         = 468
)

// Hand landmark indices (21-point topology).
const (
	HandWrist     = 0
	HandThumbCMC  = 1
	HandIndexMCP  = 5
	HandMiddleMCP = 9
	HandRingMCP   = 13
	HandPinkyMCP  = 17
	HandCount     = 21
)

// FingerBases lists the first landmark of each finger chain, thumb first.
// Each chain is four consecutive indices from the base to the tip.
var FingerBases = []int{HandThumbCMC, HandIndexMCP, HandMiddleMCP, HandRingMCP, HandPinkyMCP}
