// Package models - registry for models.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-vision/models/face"
	"github.com/nvr-ai/go-vision/models/model"
	"github.com/nvr-ai/go-vision/models/sam"
)

// NewSegmenter creates a promptable segmentation model by variant name.
//
// The set of names is closed: sam_b, sam_l and sam_h. Each loads an image
// encoder and a prompt decoder ONNX file.
//
// Arguments:
//   - args: Name, EncoderPath, DecoderPath, InputSize and provider selection.
//   - opts: The decoder mask output options.
//
// Returns:
//   - sam.Model: The loaded model.
//   - error: An error if the name is not a segmenter or loading fails.
//
// Example:
//
// ```go
//
//	segmenter, err := NewSegmenter(model.NewModelArgs{
//	    Name:        model.ModelNameSAMH,
//	    EncoderPath: "/models/sam_vit_h_encoder.onnx",
//	    DecoderPath: "/models/sam_vit_h_decoder.onnx",
//	    InputSize:   1024,
//	}, sam.DefaultOptions())
//
// ```
func NewSegmenter(args model.NewModelArgs, opts sam.Options) (sam.Model, error) {
	switch args.Name {
	case model.ModelNameSAMB, model.ModelNameSAML, model.ModelNameSAMH:
		m, err := sam.NewONNXModel(args, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported segmenter: %q", args.Name)
	}
}

// NewDetector creates a face detection model by variant name.
//
// Arguments:
//   - args: Name, Path, InputSize, BatchSize and provider selection.
//
// Returns:
//   - face.Detector: The loaded detector.
//   - error: An error if the name is not a detector or loading fails.
func NewDetector(args model.NewModelArgs) (face.Detector, error) {
	switch args.Name {
	case model.ModelNameYOLOv5FaceN, model.ModelNameYOLOv5FaceS:
		d, err := face.NewONNXDetector(args)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported detector: %q", args.Name)
	}
}
