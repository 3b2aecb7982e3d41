// Package model - Definitions shared by the segmentation and detection models.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// FamilySegmentAnything is the promptable segmentation family.
	FamilySegmentAnything Family = "sam"
	// FamilyYOLOFace is the single-class YOLOv5 face detector family.
	FamilyYOLOFace Family = "yolov5face"
)

// Name is the unique identifier of a model variant.
type Name string

const (
	// ModelNameSAMB is Segment Anything with the ViT-B image encoder.
	ModelNameSAMB Name = "sam_b"
	// ModelNameSAML is Segment Anything with the ViT-L image encoder.
	ModelNameSAML Name = "sam_l"
	// ModelNameSAMH is Segment Anything with the ViT-H image encoder.
	ModelNameSAMH Name = "sam_h"
	// ModelNameYOLOv5FaceN is the nano YOLOv5 face detector.
	ModelNameYOLOv5FaceN Name = "yolov5face_n"
	// ModelNameYOLOv5FaceS is the small YOLOv5 face detector.
	ModelNameYOLOv5FaceS Name = "yolov5face_s"
)

// Family returns the family a variant belongs to, or an error for unknown names.
func (n Name) Family() (Family, error) {
	switch n {
	case ModelNameSAMB, ModelNameSAML, ModelNameSAMH:
		return FamilySegmentAnything, nil
	case ModelNameYOLOv5FaceN, ModelNameYOLOv5FaceS:
		return FamilyYOLOFace, nil
	default:
		return "", fmt.Errorf("unknown model %q", n)
	}
}

// SegmentOutput is the raw decoder output for one prompt.
type SegmentOutput struct {
	// Size is the side of every square map, the padded input size.
	Size int
	// Masks holds one Size*Size map per candidate mask, row major.
	Masks [][]float32
	// IoU holds the predicted quality of each candidate.
	IoU []float32
}

// Detections are the decoded detections of one image in original-image pixels.
type Detections []postprocess.Result

// Boxes returns the detection boxes.
func (d Detections) Boxes() []images.Rect {
	boxes := make([]images.Rect, len(d))
	for i, r := range d {
		boxes[i] = r.Box
	}
	return boxes
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name Name `json:"name" yaml:"name" mapstructure:"name"`
	// Path is the model file. Segmenters read EncoderPath and DecoderPath instead.
	Path        string `json:"path" yaml:"path" mapstructure:"path"`
	EncoderPath string `json:"encoder_path" yaml:"encoder_path" mapstructure:"encoder_path"`
	DecoderPath string `json:"decoder_path" yaml:"decoder_path" mapstructure:"decoder_path"`
	// InputSize is the square network input side.
	InputSize int `json:"input_size" yaml:"input_size" mapstructure:"input_size"`
	// BatchSize is the fixed batch bound into detector sessions.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	// LibraryPath is the ONNX Runtime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path" mapstructure:"library_path"`
	// Provider is "cpu" or "cuda".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	// DeviceID is the accelerator ordinal.
	DeviceID int `json:"device_id" yaml:"device_id" mapstructure:"device_id"`
}
