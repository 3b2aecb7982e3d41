package evaluate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nvr-ai/go-vision/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name      string
		recall    []float64
		precision []float64
		want      float64
	}{
		{name: "perfect", recall: []float64{1}, precision: []float64{1}, want: 1},
		{name: "tp fp tp", recall: []float64{0.5, 0.5, 1}, precision: []float64{1, 0.5, 2.0 / 3.0}, want: 0.5 + 0.5*2.0/3.0},
		{name: "no detections", want: 0},
		{name: "half recall", recall: []float64{0.5}, precision: []float64{1}, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AveragePrecision(tt.recall, tt.precision), 1e-9)
		})
	}
}

func box(x1, y1, x2, y2 float32) images.Rect {
	return images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestComputeMetrics(t *testing.T) {
	records := []ImageRecord{
		{
			Index:       0,
			GroundTruth: []images.Rect{box(0, 0, 10, 10), box(20, 20, 30, 30)},
			Detections: []Detection{
				{Box: box(0, 0, 10, 10), Score: 0.9},
				{Box: box(0, 0, 10, 11), Score: 0.8},
				{Box: box(20, 20, 30, 30), Score: 0.7},
			},
			Loss: 0.2,
		},
		{
			Index:       1,
			GroundTruth: nil,
			Detections:  []Detection{{Box: box(5, 5, 6, 6), Score: 0.1}},
			Loss:        0,
		},
	}

	m := ComputeMetrics(records, 0.5, 2*time.Second)

	assert.Equal(t, 2, m.ImageNum)
	assert.Equal(t, 2, m.GTNum)
	assert.Equal(t, 4, m.DetNum)
	// Ranked: TP, duplicate FP, TP, FP.
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 1.0, m.Recall, 1e-9)
	assert.InDelta(t, 0.5+0.5*2.0/3.0, m.AP50, 1e-9)
	assert.InDelta(t, 0.1, m.MeanLoss, 1e-6)
	assert.InDelta(t, 1.0, m.FPS, 1e-9)
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil, 0.5, 0)
	assert.Equal(t, Metrics{}, m)
}

func TestMergePartials(t *testing.T) {
	enc := func(p Partial) []byte {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		return b
	}

	payloads := [][]byte{
		enc(Partial{Rank: 0, Elapsed: time.Second, Records: []ImageRecord{{Index: 0}, {Index: 2}, {Index: 4}}}),
		enc(Partial{Rank: 1, Elapsed: 3 * time.Second, Records: []ImageRecord{{Index: 1}, {Index: 3}, {Index: 0, Loss: 9}}}),
	}

	records, elapsed, err := MergePartials(payloads)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, elapsed)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, i, r.Index)
	}
	assert.Zero(t, records[0].Loss, "the first copy of a padded sample wins")

	_, _, err = MergePartials([][]byte{[]byte("{")})
	assert.Error(t, err)
}

func TestMetrics_Lines(t *testing.T) {
	m := Metrics{ImageNum: 3, GTNum: 2, DetNum: 3, Precision: 1.0 / 3.0, Recall: 0.5, AP50: 0.5, MeanLoss: 1.0 / 3.0, FPS: 12.5}
	assert.Equal(t, []string{
		"image_num: 3",
		"gt_num: 2",
		"det_num: 3",
		"precision: 0.3333",
		"recall: 0.5000",
		"ap50: 0.5000",
		"mean_loss: 0.3333",
		"fps: 12.50",
	}, m.Lines())
}
