package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-vision/images"
	"github.com/nvr-ai/go-vision/models/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSegmenter echoes a fixed result or error.
type fakeSegmenter struct {
	err  error
	reqs []sam.Request
}

func (f *fakeSegmenter) Predict(_ context.Context, req sam.Request) (*sam.Response, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	b := req.Image.Bounds()
	c := color.RGBA{R: 30, G: 144, B: 255, A: 255}
	if req.Color != nil {
		c = *req.Color
	}
	return &sam.Response{
		Box:           images.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4},
		IoU:           0.75,
		Color:         c,
		ImageWithMask: image.NewRGBA(b),
		Mask:          image.NewGray(b),
	}, nil
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, images.EncodePNG(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// form builds a multipart body; nil file contents are omitted.
func form(t *testing.T, img, mask []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range map[string][]byte{"image": img, "mask": mask} {
		if data == nil {
			continue
		}
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func post(s *Server, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/segment", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, req)
	return resp
}

func TestSegment_OK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	seg := &fakeSegmenter{}
	s := New(seg, Options{})

	body, ct := form(t, pngOf(t, 8, 6), pngOf(t, 8, 6), map[string]string{"mask_out_idx": "2", "color": "#ff8000"})
	resp := post(s, body, ct)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var got SegmentResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.NotEmpty(t, got.RequestID)
	assert.Equal(t, 2, got.MaskOutIdx)
	assert.InDelta(t, 0.75, got.IoU, 1e-6)
	assert.Equal(t, [4]float32{1, 2, 3, 4}, got.Box)
	assert.Equal(t, "#ff8000", got.Color)
	assert.True(t, strings.HasPrefix(got.ImageWithMask, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(got.Mask, "data:image/png;base64,"))

	require.Len(t, seg.reqs, 1)
	assert.Equal(t, 2, seg.reqs[0].MaskIndex)
	assert.Equal(t, 8, seg.reqs[0].Sketch.Bounds().Dx())
}

func TestSegment_Errors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	img := pngOf(t, 4, 4)

	tests := []struct {
		name    string
		img     []byte
		mask    []byte
		fields  map[string]string
		segErr  error
		maxBody int64
		maxPix  int
		want    int
	}{
		{name: "missing image", mask: img, want: http.StatusBadRequest},
		{name: "missing mask", img: img, want: http.StatusBadRequest},
		{name: "undecodable image", img: []byte("not an image"), mask: img, want: http.StatusBadRequest},
		{name: "index too large", img: img, mask: img, fields: map[string]string{"mask_out_idx": "4"}, want: http.StatusBadRequest},
		{name: "negative index", img: img, mask: img, fields: map[string]string{"mask_out_idx": "-1"}, want: http.StatusBadRequest},
		{name: "non integer index", img: img, mask: img, fields: map[string]string{"mask_out_idx": "one"}, want: http.StatusBadRequest},
		{name: "bad color", img: img, mask: img, fields: map[string]string{"color": "blue"}, want: http.StatusBadRequest},
		{name: "empty sketch", img: img, mask: img, segErr: sam.ErrEmptyPrompt, want: http.StatusUnprocessableEntity},
		{name: "sketch size", img: img, mask: img, segErr: sam.ErrSketchSize, want: http.StatusBadRequest},
		{name: "model failure", img: img, mask: img, segErr: errors.New("cuda out of memory"), want: http.StatusInternalServerError},
		{name: "too large", img: bytes.Repeat([]byte("a"), 4096), mask: img, maxBody: 1024, want: http.StatusRequestEntityTooLarge},
		{name: "too many pixels", img: pngOf(t, 8, 6), mask: pngOf(t, 8, 6), maxPix: 47, want: http.StatusRequestEntityTooLarge},
		{name: "sketch too many pixels", img: img, mask: pngOf(t, 8, 6), maxPix: 16, want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := &fakeSegmenter{err: tt.segErr}
			s := New(seg, Options{MaxUploadBytes: tt.maxBody, MaxImagePixels: tt.maxPix})

			body, ct := form(t, tt.img, tt.mask, tt.fields)
			resp := post(s, body, ct)
			assert.Equal(t, tt.want, resp.Code, resp.Body.String())

			var got errorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
			assert.NotEmpty(t, got.Error)
			if tt.segErr != nil {
				assert.Contains(t, got.Error, tt.segErr.Error())
			}
			if tt.maxPix > 0 {
				assert.Empty(t, seg.reqs, "oversized image never reaches the model")
			}
		})
	}
}

func TestIndexAndHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(&fakeSegmenter{}, Options{})

	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "mask out idx")
	assert.Contains(t, resp.Body.String(), "RUN!")

	resp = httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestServe_GracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(&fakeSegmenter{}, Options{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(sam.ErrEmptyPrompt))
	assert.Equal(t, http.StatusBadRequest, statusFor(sam.ErrMaskIndex))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
