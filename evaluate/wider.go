package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-vision/images"
	"github.com/pkg/errors"
)

// WIDER FACE attribute columns after x y w h.
const (
	widerFields       = 10
	widerInvalidField = 7
)

// Sample is one annotated image.
type Sample struct {
	// Index is the position in the dataset, stable across ranks.
	Index int
	// Path is the image file.
	Path string
	// Boxes are the valid ground truth faces in pixels.
	Boxes []images.Rect
}

// Dataset is an ordered list of samples.
type Dataset struct {
	Name    string
	Samples []Sample
}

// LoadDataset parses the annotation file named by cfg.
func LoadDataset(cfg DatasetConfig) (*Dataset, error) {
	f, err := os.Open(cfg.Annotation)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening annotations for %s", cfg.Name)
	}
	defer f.Close()

	samples, err := ParseWIDER(f, cfg.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing %s", cfg.Annotation)
	}
	return &Dataset{Name: cfg.Name, Samples: samples}, nil
}

// ParseWIDER reads the WIDER FACE ground truth format.
//
// Each entry is the image path, the face count, then one line per face:
// x y w h blur expression illumination invalid occlusion pose. An entry with
// zero faces is followed by a single placeholder line of zeros.
//
// Arguments:
//   - r: The annotation text.
//   - root: Prefix joined to every image path.
//
// Returns:
//   - []Sample: The samples, invalid and degenerate boxes removed.
//   - error: An error on malformed input.
func ParseWIDER(r io.Reader, root string) ([]Sample, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var samples []Sample
	for i := 0; i < len(lines); {
		path := lines[i]
		if i+1 >= len(lines) {
			return nil, fmt.Errorf("entry %q has no face count", path)
		}
		count, err := strconv.Atoi(lines[i+1])
		if err != nil || count < 0 {
			return nil, fmt.Errorf("entry %q has bad face count %q", path, lines[i+1])
		}
		i += 2

		sample := Sample{Index: len(samples), Path: filepath.Join(root, path)}
		if count == 0 {
			if i < len(lines) && isBoxLine(lines[i]) {
				i++
			}
			samples = append(samples, sample)
			continue
		}

		if i+count > len(lines) {
			return nil, fmt.Errorf("entry %q declares %d faces, file ends early", path, count)
		}
		for _, line := range lines[i : i+count] {
			box, ok, err := parseBox(line)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", path, err)
			}
			if ok {
				sample.Boxes = append(sample.Boxes, box)
			}
		}
		i += count
		samples = append(samples, sample)
	}
	return samples, nil
}

func isBoxLine(line string) bool {
	_, _, err := parseBox(line)
	return err == nil
}

// parseBox returns ok=false for boxes marked invalid or with no area.
func parseBox(line string) (images.Rect, bool, error) {
	fields := strings.Fields(line)
	if len(fields) != widerFields {
		return images.Rect{}, false, fmt.Errorf("box line %q has %d fields, want %d", line, len(fields), widerFields)
	}
	vals := make([]float32, widerFields)
	for j, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return images.Rect{}, false, fmt.Errorf("box line %q: %w", line, err)
		}
		vals[j] = float32(v)
	}

	x, y, w, h := vals[0], vals[1], vals[2], vals[3]
	if vals[widerInvalidField] != 0 || w <= 0 || h <= 0 {
		return images.Rect{}, false, nil
	}
	return images.Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}, true, nil
}
