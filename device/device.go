// Package device - GPU discovery for evaluation workers.
package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// GPU is one visible accelerator.
type GPU struct {
	Index     int
	Name      string
	MemoryMiB int
}

// Prober lists the GPUs available to this process.
type Prober interface {
	Probe(ctx context.Context) ([]GPU, error)
}

// SMIProber queries nvidia-smi.
type SMIProber struct {
	// Path is the nvidia-smi binary; empty means look it up on PATH.
	Path string
}

// smiQuery asks for one CSV row per device.
var smiQuery = []string{"--query-gpu=index,name,memory.total", "--format=csv,noheader,nounits"}

// Probe runs nvidia-smi. A missing binary is reported as no devices, not an error.
func (p SMIProber) Probe(ctx context.Context) ([]GPU, error) {
	path := p.Path
	if path == "" {
		var err error
		if path, err = exec.LookPath("nvidia-smi"); err != nil {
			return nil, nil
		}
	}

	out, err := exec.CommandContext(ctx, path, smiQuery...).Output()
	if err != nil {
		return nil, errors.Wrap(err, "error running nvidia-smi")
	}
	return ParseSMI(out)
}

// ParseSMI reads "index, name, memory" rows.
//
// Arguments:
//   - out: The nvidia-smi CSV output without header or units.
//
// Returns:
//   - []GPU: The devices in output order.
//   - error: An error if a row is malformed.
func ParseSMI(out []byte) ([]GPU, error) {
	var gpus []GPU
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected nvidia-smi row %q", line)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "bad device index in %q", line)
		}
		mem, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, errors.Wrapf(err, "bad memory size in %q", line)
		}
		gpus = append(gpus, GPU{Index: idx, Name: strings.TrimSpace(fields[1]), MemoryMiB: mem})
	}
	return gpus, sc.Err()
}

// Static is a fixed device list, for hosts where probing is not possible.
type Static []GPU

// Probe returns the list.
func (s Static) Probe(context.Context) ([]GPU, error) {
	return s, nil
}

// TypeName is the device name used for gpus_type, "" when there are none.
func TypeName(gpus []GPU) string {
	if len(gpus) == 0 {
		return ""
	}
	return gpus[0].Name
}
