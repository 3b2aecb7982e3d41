// Package providers - Inference sessions.
package providers

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
)

var envMu sync.Mutex

// GetSharedLibPath returns the default path to the shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library, empty if the platform is unknown.
func GetSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}

// InitializeEnvironment loads the native runtime once per process.
//
// Later calls are no-ops, whatever path they pass.
//
// Arguments:
//   - libPath: The shared library to load. Empty selects GetSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialise.
func InitializeEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	// Point ONNX Runtime to the exact shared library path (overrides default search).
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// DestroyEnvironment releases the native runtime.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// TensorSpec names a float32 model input or output and its fixed shape.
type TensorSpec struct {
	Name  string
	Shape ort.Shape
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The inputs of the model, in binding order.
	Inputs []TensorSpec
	// The outputs of the model, in binding order.
	Outputs []TensorSpec
}

// Session represents a model session from the onnxruntime with preallocated tensors.
//
// A session is not safe for concurrent use: Run writes into the shared output
// tensors. Callers serialise access.
type Session struct {
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

// NewSession creates a new session.
//
// Order of operations:
//  1. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  2. Session options: Controls threading and optimization level.
//  3. Execution providers: Enables the GPU path when configured.
//  4. Session creation: Loads the model and binds the tensors.
//
// The environment must have been initialised with InitializeEnvironment.
//
// Arguments:
//   - provider: The provider for the session.
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: Wrapped session that holds the native session and tensors for inference.
//   - error: An error if the session creation fails.
func NewSession(provider ExecutionProvider, args NewSessionArgs) (_ *Session, err error) {
	s := &Session{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.Close())
		}
	}()

	inputNames := make([]string, 0, len(args.Inputs))
	inputValues := make([]ort.Value, 0, len(args.Inputs))
	for _, spec := range args.Inputs {
		t, err := ort.NewEmptyTensor[float32](spec.Shape)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating input tensor %q", spec.Name)
		}
		s.inputs = append(s.inputs, t)
		inputNames = append(inputNames, spec.Name)
		inputValues = append(inputValues, t)
	}

	outputNames := make([]string, 0, len(args.Outputs))
	outputValues := make([]ort.Value, 0, len(args.Outputs))
	for _, spec := range args.Outputs {
		t, err := ort.NewEmptyTensor[float32](spec.Shape)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating output tensor %q", spec.Name)
		}
		s.outputs = append(s.outputs, t)
		outputNames = append(outputNames, spec.Name)
		outputValues = append(outputValues, t)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	// Enables graph rewrites (e.g., fusion, constant folding) during graph loading.
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	if provider != nil {
		if err := provider.Append(options); err != nil {
			return nil, err
		}
	}

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		inputNames,
		outputNames,
		inputValues,
		outputValues,
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", args.ModelPath)
	}
	s.session = session

	return s, nil
}

// Input returns the backing slice of input i. Writes are visible to the next Run.
func (s *Session) Input(i int) []float32 {
	return s.inputs[i].GetData()
}

// Output returns the backing slice of output i as filled by the last Run.
func (s *Session) Output(i int) []float32 {
	return s.outputs[i].GetData()
}

// OutputShape returns the shape output i was allocated with.
func (s *Session) OutputShape(i int) ort.Shape {
	return s.outputs[i].GetShape()
}

// Run executes the model over the bound tensors.
func (s *Session) Run() error {
	if s.session == nil {
		return fmt.Errorf("session is closed")
	}
	if err := s.session.Run(); err != nil {
		return errors.Wrap(err, "error running ORT session")
	}
	return nil
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: Every teardown failure, combined.
func (s *Session) Close() error {
	var err error

	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	for _, t := range s.inputs {
		err = multierr.Append(err, t.Destroy())
	}
	s.inputs = nil
	for _, t := range s.outputs {
		err = multierr.Append(err, t.Destroy())
	}
	s.outputs = nil

	return err
}
