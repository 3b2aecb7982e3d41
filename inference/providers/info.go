package providers

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ModelInfo lists the graph inputs and outputs of an ONNX file.
type ModelInfo struct {
	Path    string
	Inputs  []ort.InputOutputInfo
	Outputs []ort.InputOutputInfo
}

// ReadModelInfo inspects a model without creating a session.
//
// Arguments:
//   - path: The ONNX model file.
//
// Returns:
//   - *ModelInfo: The declared inputs and outputs.
//   - error: An error if the file cannot be parsed.
func ReadModelInfo(path string) (*ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model info from %s", path)
	}
	return &ModelInfo{Path: path, Inputs: inputs, Outputs: outputs}, nil
}

// String renders "inputs: name[dims], ... outputs: name[dims], ...".
func (m *ModelInfo) String() string {
	return fmt.Sprintf("inputs: %s outputs: %s", describe(m.Inputs), describe(m.Outputs))
}

func describe(infos []ort.InputOutputInfo) string {
	parts := make([]string, 0, len(infos))
	for _, info := range infos {
		parts = append(parts, fmt.Sprintf("%s%v", info.Name, []int64(info.Dimensions)))
	}
	return strings.Join(parts, ", ")
}
