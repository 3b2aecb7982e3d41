// Package inference - Inference engine builder over ONNX Runtime sessions.
package inference

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-vision/inference/providers"
	"go.uber.org/multierr"
)

// Engine owns the named sessions a model needs (for example an encoder and a
// decoder) and the provider they run on.
type Engine struct {
	provider providers.ExecutionProvider
	sessions map[string]*providers.Session
}

// Provider returns the execution provider the sessions were created with.
func (e *Engine) Provider() providers.ExecutionProvider {
	return e.provider
}

// Session returns the named session.
//
// Arguments:
//   - name: The session name given to WithSession.
//
// Returns:
//   - *providers.Session: The session.
//   - error: An error if no session has that name.
func (e *Engine) Session(name string) (*providers.Session, error) {
	s, ok := e.sessions[name]
	if !ok {
		return nil, fmt.Errorf("engine has no session %q", name)
	}
	return s, nil
}

// Close releases every session.
func (e *Engine) Close() error {
	names := make([]string, 0, len(e.sessions))
	for name := range e.sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	var err error
	for _, name := range names {
		err = multierr.Append(err, e.sessions[name].Close())
	}
	e.sessions = nil
	return err
}

type sessionRequest struct {
	name string
	args providers.NewSessionArgs
}

// EngineBuilder builds an Engine with a fluent API.
type EngineBuilder struct {
	libPath  string
	provider providers.ExecutionProvider
	requests []sessionRequest
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
//
// @example
//
//	engine, err := NewEngineBuilder().
//	    WithLibrary(cfg.ORTLibraryPath).
//	    WithProvider(providers.Config{Backend: providers.CUDAProviderBackend, DeviceID: 0}).
//	    WithSession("detector", args).
//	    Build()
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithLibrary sets the ONNX Runtime shared library path.
func (b *EngineBuilder) WithLibrary(path string) *EngineBuilder {
	b.libPath = path
	return b
}

// WithProvider sets the provider for the engine.
//
// Arguments:
//   - cfg: The provider selection.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(cfg providers.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		b.err = err
		return b
	}
	b.provider = provider
	return b
}

// WithSession queues a session to create at Build time.
//
// Arguments:
//   - name: The key the session is looked up by.
//   - args: The model path and tensor bindings.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithSession(name string, args providers.NewSessionArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	for _, r := range b.requests {
		if r.name == name {
			b.err = fmt.Errorf("duplicate session %q", name)
			return b
		}
	}
	b.requests = append(b.requests, sessionRequest{name: name, args: args})
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build initialises the runtime and creates every queued session.
//
// Returns:
//   - *Engine: The engine.
//   - error: The first error recorded by the builder or raised while loading.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.provider == nil {
		return nil, fmt.Errorf("provider not configured")
	}
	if len(b.requests) == 0 {
		return nil, fmt.Errorf("no sessions configured")
	}

	if err := providers.InitializeEnvironment(b.libPath); err != nil {
		return nil, err
	}

	e := &Engine{provider: b.provider, sessions: make(map[string]*providers.Session, len(b.requests))}
	for _, r := range b.requests {
		s, err := providers.NewSession(b.provider, r.args)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("session %q: %w", r.name, err), e.Close())
		}
		e.sessions[r.name] = s
	}

	return e, nil
}
