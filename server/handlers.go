package server

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/logging"
	"github.com/nvr-ai/go-vision/models/sam"
	"go.uber.org/zap"
)

// ErrImageTooLarge is returned for uploads whose header declares more pixels
// than the server accepts.
var ErrImageTooLarge = errors.New("image too large")

// SegmentResponse is the JSON body of a successful POST /v1/segment.
type SegmentResponse struct {
	RequestID  string     `json:"request_id"`
	MaskOutIdx int        `json:"mask_out_idx"`
	IoU        float32    `json:"iou"`
	Box        [4]float32 `json:"box"`
	Color      string     `json:"color"`
	// ImageWithMask and Mask are PNG data URIs.
	ImageWithMask string `json:"image_with_mask"`
	Mask          string `json:"mask"`
}

// errorResponse is the JSON body of every failure.
type errorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// RegisterRoutes wires the demo handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, s *Server) {
	router.GET("/", func(c *gin.Context) {
		page, err := static.ReadFile("static/index.html")
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/v1/segment", s.segment)
}

func (s *Server) segment(c *gin.Context) {
	requestID := uuid.NewString()
	logger := logging.WithOperation(s.opts.Logger, "segment", requestID)
	fail := func(status int, err error) {
		logger.Warn("segment failed", zap.Int("status", status), zap.Error(err))
		c.JSON(status, errorResponse{RequestID: requestID, Error: err.Error()})
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		fail(http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}

	req, err := parseRequest(c, s.opts.MaxImagePixels)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		fail(status, err)
		return
	}

	if err := s.queue.Acquire(c.Request.Context(), 1); err != nil {
		fail(http.StatusServiceUnavailable, fmt.Errorf("request cancelled while queued: %w", err))
		return
	}
	res, err := s.seg.Predict(c.Request.Context(), req)
	s.queue.Release(1)
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	withMask, err := images.PNGDataURI(res.ImageWithMask)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}
	mask, err := images.PNGDataURI(res.Mask)
	if err != nil {
		fail(http.StatusInternalServerError, err)
		return
	}

	logger.Info("segmented",
		zap.Stringer("box", res.Box),
		zap.Int("mask_out_idx", req.MaskIndex),
		zap.Float32("iou", res.IoU),
	)

	c.JSON(http.StatusOK, SegmentResponse{
		RequestID:     requestID,
		MaskOutIdx:    req.MaskIndex,
		IoU:           res.IoU,
		Box:           [4]float32{res.Box.X1, res.Box.Y1, res.Box.X2, res.Box.Y2},
		Color:         sam.HexColor(res.Color),
		ImageWithMask: withMask,
		Mask:          mask,
	})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sam.ErrEmptyPrompt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sam.ErrSketchSize), errors.Is(err, sam.ErrMaskIndex):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseRequest(c *gin.Context, maxPixels int) (sam.Request, error) {
	var req sam.Request

	img, err := formImage(c, "image", maxPixels)
	if err != nil {
		return req, err
	}
	sketch, err := formImage(c, "mask", maxPixels)
	if err != nil {
		return req, err
	}
	req.Image, req.Sketch = img, sketch

	if v := c.PostForm("mask_out_idx"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("mask_out_idx %q is not an integer", v)
		}
		req.MaskIndex = idx
	}
	if req.MaskIndex < 0 || req.MaskIndex >= sam.NumMaskOutputs {
		return req, fmt.Errorf("%w: mask_out_idx must be 0 to %d, got %d", sam.ErrMaskIndex, sam.NumMaskOutputs-1, req.MaskIndex)
	}

	if v := c.PostForm("color"); v != "" {
		col, err := sam.ParseHexColor(v)
		if err != nil {
			return req, err
		}
		req.Color = &col
	}
	return req, nil
}

func formImage(c *gin.Context, field string, maxPixels int) (image.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s file is required", field)
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", field, err)
	}
	cfg, err := images.DecodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", field, err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %s is %dx%d, limit is %d pixels", ErrImageTooLarge, field, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := images.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", field, err)
	}
	return img, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
