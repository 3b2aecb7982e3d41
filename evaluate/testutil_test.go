package evaluate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/face"
	"github.com/nvr-ai/go-vision/models/model/preprocess"
	"github.com/stretchr/testify/require"
)

// pngBytes encodes a flat grey square.
func pngBytes(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, images.EncodePNG(&buf, img))
	return buf.Bytes()
}

// fixedDetector reports one face at (24,24)-(40,40) of every input.
type fixedDetector struct {
	size, batch int
	calls       int
	closed      bool
}

func (d *fixedDetector) InputSize() int { return d.size }
func (d *fixedDetector) BatchSize() int { return d.batch }

func (d *fixedDetector) Forward(_ context.Context, batch []*preprocess.PreprocessingResult) ([][]float32, error) {
	d.calls++
	out := make([][]float32, len(batch))
	for i := range batch {
		raw := make([]float32, face.NumPredictions(d.size)*face.RowSize)
		raw[0], raw[1], raw[2], raw[3], raw[4] = 32, 32, 16, 16, 0.9
		raw[15] = 1
		out[i] = raw
	}
	return out, nil
}

func (d *fixedDetector) Close() error {
	d.closed = true
	return nil
}

// widerFixture writes three 64x64 images and their annotations.
//
// Image 0 holds a face where fixedDetector reports one, image 1 holds a face
// elsewhere and image 2 has none.
func widerFixture(t *testing.T, dir string) DatasetConfig {
	t.Helper()
	imgDir := filepath.Join(dir, "images", "0--Parade")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))

	data := pngBytes(t, 64)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(imgDir, name), data, 0o644))
	}

	gt := "0--Parade/a.png\n1\n24 24 16 16 0 0 0 0 0 0\n" +
		"0--Parade/b.png\n1\n0 0 8 8 0 0 0 0 0 0\n" +
		"0--Parade/c.png\n0\n0 0 0 0 0 0 0 0 0 0\n"
	ann := filepath.Join(dir, "wider_face_val_bbx_gt.txt")
	require.NoError(t, os.WriteFile(ann, []byte(gt), 0o644))

	return DatasetConfig{Name: "tiny", Root: filepath.Join(dir, "images"), Annotation: ann}
}
