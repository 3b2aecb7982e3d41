package evaluate

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/model"
)

// Detection is a scored box in original image pixels.
type Detection struct {
	Box   images.Rect `json:"box"`
	Score float32     `json:"score"`
}

// ImageRecord is one evaluated image.
type ImageRecord struct {
	Index       int           `json:"index"`
	Detections  []Detection   `json:"detections"`
	GroundTruth []images.Rect `json:"ground_truth"`
	Loss        float32       `json:"loss"`
}

// NewImageRecord converts decoder output into a record.
func NewImageRecord(s Sample, dets model.Detections, loss float32) ImageRecord {
	r := ImageRecord{Index: s.Index, GroundTruth: s.Boxes, Loss: loss}
	for _, d := range dets {
		r.Detections = append(r.Detections, Detection{Box: d.Box, Score: d.Score})
	}
	return r
}

// Partial is one rank's share of a dataset, exchanged through Gather.
type Partial struct {
	Rank    int           `json:"rank"`
	Elapsed time.Duration `json:"elapsed"`
	Records []ImageRecord `json:"records"`
}

// MergePartials decodes every rank's payload, drops padded duplicates and
// orders the records by sample index.
//
// Arguments:
//   - payloads: The gathered payloads, one per rank.
//
// Returns:
//   - []ImageRecord: One record per distinct sample.
//   - time.Duration: The slowest rank's elapsed time.
//   - error: An error if a payload cannot be decoded.
func MergePartials(payloads [][]byte) ([]ImageRecord, time.Duration, error) {
	seen := make(map[int]struct{})
	var (
		records []ImageRecord
		elapsed time.Duration
	)
	for i, p := range payloads {
		var part Partial
		if err := json.Unmarshal(p, &part); err != nil {
			return nil, 0, fmt.Errorf("error decoding partial from rank %d: %w", i, err)
		}
		elapsed = max(elapsed, part.Elapsed)
		for _, r := range part.Records {
			if _, dup := seen[r.Index]; dup {
				continue
			}
			seen[r.Index] = struct{}{}
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, elapsed, nil
}

// Metrics summarises one dataset.
type Metrics struct {
	ImageNum  int
	GTNum     int
	DetNum    int
	Precision float64
	Recall    float64
	AP50      float64
	MeanLoss  float64
	FPS       float64
}

// Lines renders the metrics as "key: value" in report order.
func (m Metrics) Lines() []string {
	return []string{
		fmt.Sprintf("image_num: %d", m.ImageNum),
		fmt.Sprintf("gt_num: %d", m.GTNum),
		fmt.Sprintf("det_num: %d", m.DetNum),
		fmt.Sprintf("precision: %.4f", m.Precision),
		fmt.Sprintf("recall: %.4f", m.Recall),
		fmt.Sprintf("ap50: %.4f", m.AP50),
		fmt.Sprintf("mean_loss: %.4f", m.MeanLoss),
		fmt.Sprintf("fps: %.2f", m.FPS),
	}
}

type rankedDetection struct {
	image int
	box   images.Rect
	score float32
}

// ComputeMetrics matches detections to ground truth and computes AP.
//
// Detections are visited by descending score. Each is a true positive when
// its best overlapping ground truth box in the same image reaches
// iouThreshold and has not been claimed by a higher scoring detection.
//
// Arguments:
//   - records: Distinct image records.
//   - iouThreshold: The match threshold, 0.5 for AP50.
//   - elapsed: Wall time used for fps.
//
// Returns:
//   - Metrics: The summary.
func ComputeMetrics(records []ImageRecord, iouThreshold float32, elapsed time.Duration) Metrics {
	m := Metrics{ImageNum: len(records)}

	var (
		dets    []rankedDetection
		claimed = make([][]bool, len(records))
		loss    float64
	)
	for i, r := range records {
		m.GTNum += len(r.GroundTruth)
		claimed[i] = make([]bool, len(r.GroundTruth))
		loss += float64(r.Loss)
		for _, d := range r.Detections {
			dets = append(dets, rankedDetection{image: i, box: d.Box, score: d.Score})
		}
	}
	m.DetNum = len(dets)
	if m.ImageNum > 0 {
		m.MeanLoss = loss / float64(m.ImageNum)
	}
	if elapsed > 0 {
		m.FPS = float64(m.ImageNum) / elapsed.Seconds()
	}

	sort.SliceStable(dets, func(i, j int) bool { return dets[i].score > dets[j].score })

	recall := make([]float64, len(dets))
	precision := make([]float64, len(dets))
	tp := 0
	for k, d := range dets {
		gt := records[d.image].GroundTruth
		best, bestIdx := float32(0), -1
		for j, g := range gt {
			if iou := images.CalculateIoU(d.box, g); iou > best {
				best, bestIdx = iou, j
			}
		}
		if bestIdx >= 0 && best >= iouThreshold && !claimed[d.image][bestIdx] {
			claimed[d.image][bestIdx] = true
			tp++
		}
		if m.GTNum > 0 {
			recall[k] = float64(tp) / float64(m.GTNum)
		}
		precision[k] = float64(tp) / float64(k+1)
	}

	if m.DetNum > 0 {
		m.Precision = float64(tp) / float64(m.DetNum)
	}
	if m.GTNum > 0 {
		m.Recall = float64(tp) / float64(m.GTNum)
		m.AP50 = AveragePrecision(recall, precision)
	}
	return m
}

// AveragePrecision is the VOC all-point interpolated area under the
// precision/recall curve.
func AveragePrecision(recall, precision []float64) float64 {
	mrec := make([]float64, 0, len(recall)+2)
	mrec = append(mrec, 0)
	mrec = append(mrec, recall...)
	mrec = append(mrec, 1)

	mpre := make([]float64, 0, len(precision)+2)
	mpre = append(mpre, 0)
	mpre = append(mpre, precision...)
	mpre = append(mpre, 0)

	for i := len(mpre) - 2; i >= 0; i-- {
		mpre[i] = max(mpre[i], mpre[i+1])
	}

	var ap float64
	for i := 1; i < len(mrec); i++ {
		if mrec[i] != mrec[i-1] {
			ap += (mrec[i] - mrec[i-1]) * mpre[i]
		}
	}
	return ap
}
