package llm

import (
	"context"
	"errors"
	"sync"
)

// InitFunc builds the underlying provider on first use.
type InitFunc func() (LLMProvider, error)

// Lazy owns a provider handle that is created on first use and shared by
// every caller afterwards. A failed initialization is not cached, so the
// next call tries again.
type Lazy struct {
	init     InitFunc
	mu       sync.Mutex
	provider LLMProvider
}

var _ LLMProvider = (*Lazy)(nil)

func NewLazy(init InitFunc) *Lazy {
	return &Lazy{init: init}
}

// Get returns the shared provider, initializing it if needed.
func (l *Lazy) Get() (LLMProvider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.provider != nil {
		return l.provider, nil
	}
	if l.init == nil {
		return nil, errors.New("llm: lazy provider has no initializer")
	}

	p, err := l.init()
	if err != nil {
		return nil, err
	}
	l.provider = p
	return p, nil
}

// Loaded reports whether the handle has been initialized.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.provider != nil
}

func (l *Lazy) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	p, err := l.Get()
	if err != nil {
		return "", err
	}
	return p.Chat(ctx, history, options...)
}

func (l *Lazy) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	p, err := l.Get()
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, prompt, options...)
}

func (l *Lazy) Stream(ctx context.Context, history []Message, options ...Option) (TokenStream, error) {
	p, err := l.Get()
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, history, options...)
}

// Ping forwards to the provider's health check when it has one.
func (l *Lazy) Ping(ctx context.Context) error {
	p, err := l.Get()
	if err != nil {
		return err
	}
	if hc, ok := p.(HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
