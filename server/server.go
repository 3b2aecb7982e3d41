// Package server - HTTP surface of the interactive segmentation demo.
package server

import (
	"context"
	"embed"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-vision/models/sam"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

//go:embed static/index.html
var static embed.FS

// Defaults for Options.
const (
	DefaultAddr            = "0.0.0.0:6006"
	DefaultMaxUploadBytes  = 32 << 20
	DefaultMaxImagePixels  = 40_000_000
	DefaultShutdownTimeout = 15 * time.Second
)

// Segmenter is the model pipeline behind the demo; *sam.Predictor satisfies it.
type Segmenter interface {
	Predict(ctx context.Context, req sam.Request) (*sam.Response, error)
}

// Options configures a Server.
type Options struct {
	Addr            string
	MaxUploadBytes  int64
	MaxImagePixels  int
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Server serves the demo page and the segmentation endpoint.
//
// Predictions run one at a time; waiting requests queue on a weight-1
// semaphore and give up when their context ends.
type Server struct {
	seg    Segmenter
	opts   Options
	queue  *semaphore.Weighted
	router *gin.Engine
}

// New builds the router.
//
// Arguments:
//   - seg: The segmentation pipeline.
//   - opts: Address, upload and pixel limits, shutdown timeout and logger.
//
// Returns:
//   - *Server: The server, not yet listening.
func New(seg Segmenter, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = DefaultMaxImagePixels
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		seg:   seg,
		opts:  opts,
		queue: semaphore.NewWeighted(1),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = opts.MaxUploadBytes
	RegisterRoutes(router, s)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe binds opts.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
//
// Arguments:
//   - ctx: Cancel to stop; in-flight requests get ShutdownTimeout to finish.
//   - ln: The listener, closed on return.
//
// Returns:
//   - error: A serve or shutdown error; a clean stop returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	s.opts.Logger.Info("segmentation demo listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.opts.Logger.Info("shutting down", zap.Error(context.Cause(ctx)))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
