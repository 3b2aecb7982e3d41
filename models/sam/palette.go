package sam

import (
	"fmt"
	"image/color"
	"math/rand"
	"strings"
	"sync"
)

// Palette hands out mask colours from an explicitly seeded generator, so a
// process started with the same seed produces the same colour sequence.
type Palette struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPalette creates a palette seeded with seed.
func NewPalette(seed int64) *Palette {
	return &Palette{rng: rand.New(rand.NewSource(seed))}
}

// Next returns the next colour, each channel uniform in [0, 255].
func (p *Palette) Next() color.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()

	return color.RGBA{
		R: uint8(p.rng.Intn(256)),
		G: uint8(p.rng.Intn(256)),
		B: uint8(p.rng.Intn(256)),
		A: 255,
	}
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var c color.RGBA
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	c.A = 255
	return c, nil
}

// HexColor formats c as "#rrggbb".
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
