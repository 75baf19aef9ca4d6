package models

import "time"

// Detection is one recognized object instance, expressed in the coordinate
// space of the image the detector actually saw. BBox holds absolute corner
// coordinates [x1,y1,x2,y2] in pixels; BBoxNormalized holds the same box as
// [cx,cy,w,h] relative to the image size.
type Detection struct {
	Class          string     `json:"class"`
	Confidence     float32    `json:"confidence"`
	BBox           [4]float32 `json:"bbox"`
	BBoxNormalized [4]float32 `json:"bbox_normalized"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	NMS         time.Duration
	Total       time.Duration
}
