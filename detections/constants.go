package detections

const (
	InputWidth  = 640
	InputHeight = 640

	// YOLOv8 COCO head: 4 box coordinates + 80 class scores per anchor,
	// 8400 anchors at 640x640 input.
	NumClasses     = 80
	NumPredictions = 8400

	ConfThreshold = 0.25
	IouThreshold  = 0.45
)
