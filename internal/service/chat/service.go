package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	"github.com/jansunwai/assistant/internal/service/auth"
	"github.com/jansunwai/assistant/internal/service/intake"
)

// Timing holds the pacing and limits of chat sessions.
type Timing struct {
	EnterDelay    time.Duration
	ExitDelay     time.Duration
	ImageAckDelay time.Duration
	SlowNotice    time.Duration
	MaxImageBytes int64
}

// DefaultTiming mirrors the widget animation windows.
func DefaultTiming() Timing {
	return Timing{
		EnterDelay:    300 * time.Millisecond,
		ExitDelay:     300 * time.Millisecond,
		ImageAckDelay: time.Second,
		SlowNotice:    8 * time.Second,
		MaxImageBytes: 5 * 1024 * 1024,
	}
}

// Config wires the collaborators of the chat service.
type Config struct {
	Timing Timing
	Intake intake.Submitter
	// Locators returns the location source of a new session.
	Locators func(sessionID string) Locator
	// OnRemove is called after a closed session left the registry.
	OnRemove func(sessionID string)
	Logger   *zap.Logger
}

// Service keeps the live chat sessions, by id and by client.
type Service struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byClient map[string]string
}

// NewService bootstraps the in-memory session registry.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timing.MaxImageBytes <= 0 {
		cfg.Timing.MaxImageBytes = DefaultTiming().MaxImageBytes
	}
	return &Service{
		cfg:      cfg,
		logger:   cfg.Logger.Named("chat"),
		sessions: make(map[string]*Session),
		byClient: make(map[string]string),
	}
}

// Timing returns the pacing and limits applied to sessions.
func (s *Service) Timing() Timing {
	return s.cfg.Timing
}

// Open returns the client's accepting session or opens a new one. An empty
// clientID gets an anonymous id.
func (s *Service) Open(_ context.Context, clientID string, creds auth.Credentials) (*Session, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	s.mu.Lock()
	if id, ok := s.byClient[clientID]; ok {
		if existing, ok := s.sessions[id]; ok && existing.State().Accepting() {
			s.mu.Unlock()
			existing.SetCredentials(creds)
			return existing, nil
		}
	}

	session := newSession(clientID, creds, s.cfg.Timing, s.cfg.Intake, nil, s.logger, s.remove)
	if s.cfg.Locators != nil {
		session.locator = s.cfg.Locators(session.id)
	}
	if session.locator == nil {
		session.locator = noLocator{}
	}
	s.sessions[session.id] = session
	s.byClient[clientID] = session.id
	s.mu.Unlock()

	if err := session.Open(); err != nil {
		return nil, err
	}
	s.logger.Info("chat session opened", zap.String("session_id", session.id), zap.String("client_id", clientID))
	return session, nil
}

// Signal handles the app-wide "open chatbot" signal. It behaves like Open.
func (s *Service) Signal(ctx context.Context, clientID string, creds auth.Credentials) (*Session, error) {
	s.logger.Debug("open signal received", zap.String("client_id", clientID))
	return s.Open(ctx, clientID, creds)
}

// Get retrieves a live session.
func (s *Service) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close starts closing a session.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

// List returns the live sessions ordered by creation.
func (s *Service) List(_ context.Context) []chatmodel.SessionInfo {
	s.mu.RLock()
	infos := make([]chatmodel.SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		infos = append(infos, session.Info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Shutdown closes every session and waits for their background work.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, session := range sessions {
			session.Close()
		}
		for _, session := range sessions {
			session.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) remove(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.id)
	if s.byClient[session.clientID] == session.id {
		delete(s.byClient, session.clientID)
	}
	s.mu.Unlock()

	if s.cfg.OnRemove != nil {
		s.cfg.OnRemove(session.id)
	}
}
