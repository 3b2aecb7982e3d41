package sam

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPalette_Deterministic(t *testing.T) {
	a := NewPalette(0)
	b := NewPalette(0)

	for i := 0; i < 5; i++ {
		ca, cb := a.Next(), b.Next()
		assert.Equal(t, ca, cb)
		assert.Equal(t, uint8(255), ca.A)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{in: "#ff8000", want: color.RGBA{R: 255, G: 128, B: 0, A: 255}},
		{in: "00ff10", want: color.RGBA{R: 0, G: 255, B: 16, A: 255}},
		{in: "#fff", wantErr: true},
		{in: "#gg0000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "#"+trimHash(tt.in), HexColor(got))
		})
	}
}

func trimHash(s string) string {
	if len(s) > 0 && s[0] == '#' {
		return s[1:]
	}
	return s
}
