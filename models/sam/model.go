package sam

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

// Decoder geometry shared by every Segment Anything variant.
const (
	EmbeddingDim     = 256
	EmbeddingSide    = 64
	LowResMaskSide   = 256
	NumMaskOutputs   = 4
	sessionEncoder   = "encoder"
	sessionDecoder   = "decoder"
	promptPointCount = 2
)

// Variant describes one image encoder size.
type Variant struct {
	Name model.Name
	// EncoderDepth is the number of ViT blocks, informational only.
	EncoderDepth int
	// EncoderWidth is the ViT embedding width, informational only.
	EncoderWidth int
}

// Variants is the closed set of supported segmenters.
var Variants = map[model.Name]Variant{
	model.ModelNameSAMB: {Name: model.ModelNameSAMB, EncoderDepth: 12, EncoderWidth: 768},
	model.ModelNameSAML: {Name: model.ModelNameSAML, EncoderDepth: 24, EncoderWidth: 1024},
	model.ModelNameSAMH: {Name: model.ModelNameSAMH, EncoderDepth: 32, EncoderWidth: 1280},
}

// Model runs the network forward for one preprocessed image and prompt.
type Model interface {
	// InputSize is the padded square side the model was built for.
	InputSize() int
	// Segment returns every candidate mask in padded input space.
	Segment(ctx context.Context, pre *preprocess.Result, prompt *Prompt) (*model.SegmentOutput, error)
	// Close releases native resources.
	Close() error
}

// Options configures the ONNX segmenter.
type Options struct {
	// MaskThreshold binarises decoder logits when BinaryMaskOut is set.
	MaskThreshold float32
	// BinaryMaskOut returns 0/1 maps instead of logits.
	BinaryMaskOut bool
}

// DefaultOptions mirrors the reference model settings.
func DefaultOptions() Options {
	return Options{MaskThreshold: 0.0, BinaryMaskOut: true}
}

// ONNXModel is a Segment Anything model split into an image encoder and a
// prompt decoder session.
//
// The decoder is fed orig_im_size = [S, S] so the returned masks are in
// padded input space; cropping and resizing happen in PostProcess.
type ONNXModel struct {
	mu      sync.Mutex
	variant Variant
	size    int
	opts    Options
	engine  *inference.Engine
	encoder *providers.Session
	decoder *providers.Session
}

// NewONNXModel loads the encoder and decoder files.
//
// Arguments:
//   - args: The variant name, model paths, input size and provider.
//   - opts: The mask output options.
//
// Returns:
//   - *ONNXModel: The loaded model.
//   - error: An error if the variant is unknown or a session fails to load.
func NewONNXModel(args model.NewModelArgs, opts Options) (*ONNXModel, error) {
	variant, ok := Variants[args.Name]
	if !ok {
		return nil, fmt.Errorf("unknown segmenter %q", args.Name)
	}
	size := args.InputSize
	if size <= 0 {
		size = preprocess.DefaultInputSize
	}
	s := int64(size)

	engine, err := inference.NewEngineBuilder().
		WithLibrary(args.LibraryPath).
		WithProvider(providers.Config{Backend: providers.ProviderBackend(args.Provider), DeviceID: args.DeviceID}).
		WithSession(sessionEncoder, providers.NewSessionArgs{
			ModelPath: args.EncoderPath,
			Inputs:    []providers.TensorSpec{{Name: "image", Shape: ort.NewShape(1, 3, s, s)}},
			Outputs: []providers.TensorSpec{{
				Name:  "image_embeddings",
				Shape: ort.NewShape(1, EmbeddingDim, EmbeddingSide, EmbeddingSide),
			}},
		}).
		WithSession(sessionDecoder, providers.NewSessionArgs{
			ModelPath: args.DecoderPath,
			Inputs: []providers.TensorSpec{
				{Name: "image_embeddings", Shape: ort.NewShape(1, EmbeddingDim, EmbeddingSide, EmbeddingSide)},
				{Name: "point_coords", Shape: ort.NewShape(1, promptPointCount, 2)},
				{Name: "point_labels", Shape: ort.NewShape(1, promptPointCount)},
				{Name: "mask_input", Shape: ort.NewShape(1, 1, LowResMaskSide, LowResMaskSide)},
				{Name: "has_mask_input", Shape: ort.NewShape(1)},
				{Name: "orig_im_size", Shape: ort.NewShape(2)},
			},
			Outputs: []providers.TensorSpec{
				{Name: "masks", Shape: ort.NewShape(1, NumMaskOutputs, s, s)},
				{Name: "iou_predictions", Shape: ort.NewShape(1, NumMaskOutputs)},
				{Name: "low_res_masks", Shape: ort.NewShape(1, NumMaskOutputs, LowResMaskSide, LowResMaskSide)},
			},
		}).
		Build()
	if err != nil {
		return nil, err
	}

	encoder, _ := engine.Session(sessionEncoder)
	decoder, _ := engine.Session(sessionDecoder)

	return &ONNXModel{
		variant: variant,
		size:    size,
		opts:    opts,
		engine:  engine,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Variant returns the loaded variant.
func (m *ONNXModel) Variant() Variant {
	return m.variant
}

// InputSize returns the padded square side.
func (m *ONNXModel) InputSize() int {
	return m.size
}

// Segment runs the encoder and decoder.
//
// Arguments:
//   - ctx: Checked between the two sessions.
//   - pre: The preprocessed image; its padded side must equal InputSize.
//   - prompt: A box prompt in padded input space.
//
// Returns:
//   - *model.SegmentOutput: NumMaskOutputs maps and their IoU predictions.
//   - error: An error if the input size is wrong or a session fails.
func (m *ONNXModel) Segment(ctx context.Context, pre *preprocess.Result, prompt *Prompt) (*model.SegmentOutput, error) {
	if pre.Size() != m.size {
		return nil, fmt.Errorf("padded image is %d, model expects %d", pre.Size(), m.size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(m.encoder.Input(0), pre.CHW())
	if err := m.encoder.Run(); err != nil {
		return nil, fmt.Errorf("image encoder: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	coords, labels := prompt.Tensors()
	copy(m.decoder.Input(0), m.encoder.Output(0))
	copy(m.decoder.Input(1), coords)
	copy(m.decoder.Input(2), labels)
	clear(m.decoder.Input(3))
	m.decoder.Input(4)[0] = 0
	orig := m.decoder.Input(5)
	orig[0], orig[1] = float32(m.size), float32(m.size)

	if err := m.decoder.Run(); err != nil {
		return nil, fmt.Errorf("mask decoder: %w", err)
	}

	plane := m.size * m.size
	raw := m.decoder.Output(0)
	out := &model.SegmentOutput{
		Size:  m.size,
		Masks: make([][]float32, NumMaskOutputs),
		IoU:   append([]float32(nil), m.decoder.Output(1)[:NumMaskOutputs]...),
	}
	for i := range out.Masks {
		mask := make([]float32, plane)
		copy(mask, raw[i*plane:(i+1)*plane])
		if m.opts.BinaryMaskOut {
			binarize(mask, m.opts.MaskThreshold)
		}
		out.Masks[i] = mask
	}

	return out, nil
}

// binarize maps logits above threshold to 1 and the rest to 0, in place.
func binarize(v []float32, threshold float32) {
	for i := range v {
		if v[i] > threshold {
			v[i] = 1
		} else {
			v[i] = 0
		}
	}
}

// Close releases both sessions.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Close()
}
