package geo

import (
	"sync"

	"go.uber.org/zap"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
)

// Bridge keeps one RemoteProvider per chat session.
type Bridge struct {
	mu        sync.Mutex
	opts      geomodel.Options
	logger    *zap.Logger
	providers map[string]*RemoteProvider
}

// NewBridge creates an empty bridge.
func NewBridge(opts geomodel.Options, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		opts:      opts,
		logger:    logger,
		providers: make(map[string]*RemoteProvider),
	}
}

// Provider returns the session's provider, creating it on first use.
func (b *Bridge) Provider(sessionID string) *RemoteProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[sessionID]
	if !ok {
		p = NewRemoteProvider()
		b.providers[sessionID] = p
	}
	return p
}

// Helper returns an acquisition helper backed by the session's provider.
func (b *Bridge) Helper(sessionID string) *Helper {
	return NewHelper(b.Provider(sessionID), b.opts, b.logger.With(zap.String("session_id", sessionID)))
}

// Release forgets the session's provider.
func (b *Bridge) Release(sessionID string) {
	b.mu.Lock()
	delete(b.providers, sessionID)
	b.mu.Unlock()
}
