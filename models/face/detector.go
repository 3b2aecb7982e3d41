// Package face - YOLOv5 face detection through ONNX Runtime.
package face

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvr-ai/go-vision/inference"
	"github.com/nvr-ai/go-vision/inference/providers"
	"github.com/nvr-ai/go-vision/models/model"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// Output row layout: cx, cy, w, h, objectness, five landmark pairs, class score.
const (
	RowSize     = 16
	objIndex    = 4
	clsIndex    = 15
	numAnchors  = 3
	sessionName = "detector"
)

// Strides of the three detection heads.
var Strides = []int{8, 16, 32}

// DefaultInputSize is the square network input side.
const DefaultInputSize = 640

// NumPredictions returns the number of candidate rows for a square input.
func NumPredictions(size int) int {
	n := 0
	for _, s := range Strides {
		g := size / s
		n += numAnchors * g * g
	}
	return n
}

// Variants is the closed set of supported face detectors.
var Variants = map[model.Name]struct{}{
	model.ModelNameYOLOv5FaceN: {},
	model.ModelNameYOLOv5FaceS: {},
}

// Detector runs the network on a batch of letterboxed images.
type Detector interface {
	// InputSize is the square network input side.
	InputSize() int
	// BatchSize is the maximum number of images per Forward.
	BatchSize() int
	// Forward returns NumPredictions(InputSize())*RowSize raw values per image.
	Forward(ctx context.Context, batch []*preprocess.PreprocessingResult) ([][]float32, error)
	// Close releases native resources.
	Close() error
}

// ONNXDetector is a YOLOv5-face model with a fixed batch dimension.
type ONNXDetector struct {
	mu      sync.Mutex
	name    model.Name
	size    int
	batch   int
	engine  *inference.Engine
	session *providers.Session
}

// NewONNXDetector loads a detector.
//
// Arguments:
//   - args: Name, Path, InputSize, BatchSize and provider selection.
//
// Returns:
//   - *ONNXDetector: The loaded detector.
//   - error: An error if the variant is unknown or the session fails to load.
func NewONNXDetector(args model.NewModelArgs) (*ONNXDetector, error) {
	if _, ok := Variants[args.Name]; !ok {
		return nil, fmt.Errorf("unknown detector %q", args.Name)
	}
	size := args.InputSize
	if size <= 0 {
		size = DefaultInputSize
	}
	if size%Strides[len(Strides)-1] != 0 {
		return nil, fmt.Errorf("input size %d is not a multiple of %d", size, Strides[len(Strides)-1])
	}
	batch := max(args.BatchSize, 1)

	engine, err := inference.NewEngineBuilder().
		WithLibrary(args.LibraryPath).
		WithProvider(providers.Config{Backend: providers.ProviderBackend(args.Provider), DeviceID: args.DeviceID}).
		WithSession(sessionName, providers.NewSessionArgs{
			ModelPath: args.Path,
			Inputs: []providers.TensorSpec{{
				Name:  "input",
				Shape: ort.NewShape(int64(batch), 3, int64(size), int64(size)),
			}},
			Outputs: []providers.TensorSpec{{
				Name:  "output",
				Shape: ort.NewShape(int64(batch), int64(NumPredictions(size)), RowSize),
			}},
		}).
		Build()
	if err != nil {
		return nil, err
	}
	session, _ := engine.Session(sessionName)

	return &ONNXDetector{
		name:    args.Name,
		size:    size,
		batch:   batch,
		engine:  engine,
		session: session,
	}, nil
}

// InputSize returns the square network input side.
func (d *ONNXDetector) InputSize() int { return d.size }

// BatchSize returns the bound batch dimension.
func (d *ONNXDetector) BatchSize() int { return d.batch }

// Forward runs one batch. Unused batch slots are zero filled.
func (d *ONNXDetector) Forward(ctx context.Context, batch []*preprocess.PreprocessingResult) ([][]float32, error) {
	if len(batch) > d.batch {
		return nil, fmt.Errorf("batch of %d exceeds bound batch size %d", len(batch), d.batch)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := d.session.Input(0)
	plane := 3 * d.size * d.size
	clear(in)
	for i, img := range batch {
		if len(img.Data) != plane {
			return nil, fmt.Errorf("image %d has %d values, want %d", i, len(img.Data), plane)
		}
		copy(in[i*plane:(i+1)*plane], img.Data)
	}

	if err := d.session.Run(); err != nil {
		return nil, err
	}

	rows := NumPredictions(d.size) * RowSize
	raw := d.session.Output(0)
	out := make([][]float32, len(batch))
	for i := range batch {
		out[i] = append([]float32(nil), raw[i*rows:(i+1)*rows]...)
	}
	return out, nil
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Close()
}
