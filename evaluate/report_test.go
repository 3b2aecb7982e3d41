package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatReport(t *testing.T) {
	results := []DatasetResult{
		{Name: "wider_val_easy", Metrics: Metrics{ImageNum: 1, GTNum: 1, DetNum: 1, Precision: 1, Recall: 1, AP50: 1, FPS: 2}},
		{Name: "wider_val_hard", Metrics: Metrics{}},
	}

	want := "eval type: widerface\n" +
		"per eval dataset: wider_val_easy\n" +
		"image_num: 1\ngt_num: 1\ndet_num: 1\nprecision: 1.0000\nrecall: 1.0000\nap50: 1.0000\nmean_loss: 0.0000\nfps: 2.00\n" +
		"per eval dataset: wider_val_hard\n" +
		"image_num: 0\ngt_num: 0\ndet_num: 0\nprecision: 0.0000\nrecall: 0.0000\nap50: 0.0000\nmean_loss: 0.0000\nfps: 0.00\n"

	assert.Equal(t, want, FormatReport("widerface", results))
	assert.Equal(t, "eval type: ap50\n", FormatReport("ap50", nil))
}
