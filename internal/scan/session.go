package scan

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Handler receives accepted codes. Calls are serialized.
type Handler func(ctx context.Context, code string)

// State is a snapshot of a session.
type State struct {
	Active          bool   `json:"active"`
	LastDecodedCode string `json:"lastDecodedCode,omitempty"`
}

// Session wraps a Decoder and forwards each distinct decoded code to the
// handler once. A code equal to the previously accepted one is dropped until
// the session restarts, ResetDebounce is called, or a different code is
// accepted.
type Session struct {
	decoder Decoder
	cfg     Config
	handler Handler
	lg      *zap.Logger

	// life serializes Start and Stop.
	life sync.Mutex
	// dispatch serializes handler calls.
	dispatch sync.Mutex

	mu     sync.Mutex
	active bool
	last   string
	gen    uint64
	runCtx context.Context
}

// NewSession creates a stopped session.
func NewSession(decoder Decoder, cfg Config, handler Handler, lg *zap.Logger) *Session {
	return &Session{
		decoder: decoder,
		cfg:     cfg.withDefaults(),
		handler: handler,
		lg:      lg,
	}
}

// Start begins scanning and clears the debounce key. Starting a running
// session is a no-op. ctx is passed on to the handler.
func (s *Session) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.active = true
	s.last = ""
	s.runCtx = ctx
	s.mu.Unlock()

	err := s.decoder.Start(ctx, s.cfg,
		func(code string) { s.deliver(gen, code) },
		s.discard,
	)
	if err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return errors.Wrap(err, "start decoder")
	}
	s.lg.Debug("Scanning started", zap.Int("fps", s.cfg.FPS))
	return nil
}

// Stop releases the decoder. Stopping a stopped session is a no-op. Stop may
// be called from the handler.
func (s *Session) Stop(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()

	if err := s.decoder.Stop(ctx); err != nil {
		return errors.Wrap(err, "stop decoder")
	}
	s.lg.Debug("Scanning stopped")
	return nil
}

// ResetDebounce lets the next decode of any code through.
func (s *Session) ResetDebounce() {
	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()
}

// Forget clears the debounce key only if it is still code.
func (s *Session) Forget(code string) {
	s.mu.Lock()
	if s.last == code {
		s.last = ""
	}
	s.mu.Unlock()
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Active: s.active, LastDecodedCode: s.last}
}

func (s *Session) deliver(gen uint64, code string) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	if !s.active || gen != s.gen || code == s.last {
		s.mu.Unlock()
		return
	}
	s.last = code
	ctx := s.runCtx
	s.mu.Unlock()

	s.handler(ctx, code)
}

func (s *Session) discard(err error) {
	if errors.Is(err, ErrNoCode) {
		return
	}
	s.lg.Debug("Decode failure", zap.Error(err))
}
