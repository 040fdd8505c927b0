package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	"github.com/jansunwai/assistant/internal/service/auth"
	geosvc "github.com/jansunwai/assistant/internal/service/geo"
	"github.com/jansunwai/assistant/internal/service/intake"
)

const subscriberBuffer = 64

// Locator acquires one location fix.
type Locator interface {
	Acquire(ctx context.Context) (geomodel.Snapshot, error)
}

type noLocator struct{}

func (noLocator) Acquire(context.Context) (geomodel.Snapshot, error) {
	return geomodel.Snapshot{}, &geomodel.Error{Code: geomodel.PositionUnavailable}
}

// Session is one chat widget instance. Its message log is append-only and
// ordered by completion of the callbacks that produce entries. Once the
// session reaches its terminal closed state every late callback is dropped.
type Session struct {
	id        string
	clientID  string
	createdAt time.Time
	timing    Timing
	intake    intake.Submitter
	locator   Locator
	logger    *zap.Logger
	onClosed  func(*Session)

	// ctx lives as long as the session; canceled on terminal close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	locate singleflight.Group

	mu         sync.Mutex
	state      chatmodel.State
	ended      bool
	creds      auth.Credentials
	messages   []chatmodel.Message
	snapshot   *geomodel.Snapshot
	fetching   int
	typing     int
	enterTimer *time.Timer
	subs       map[int]chan chatmodel.Event
	nextSub    int
}

func newSession(clientID string, creds auth.Credentials, timing Timing, submitter intake.Submitter, locator Locator, logger *zap.Logger, onClosed func(*Session)) *Session {
	if locator == nil {
		locator = noLocator{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:        id,
		clientID:  clientID,
		createdAt: time.Now().UTC(),
		timing:    timing,
		intake:    submitter,
		locator:   locator,
		logger:    logger.With(zap.String("session_id", id)),
		onClosed:  onClosed,
		ctx:       ctx,
		cancel:    cancel,
		state:     chatmodel.StateClosed,
		creds:     creds,
		messages:  make([]chatmodel.Message, 0, 16),
		subs:      make(map[int]chan chatmodel.Event),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ClientID returns the browser or terminal the session belongs to.
func (s *Session) ClientID() string { return s.clientID }

// Info returns a snapshot of the session state.
func (s *Session) Info() chatmodel.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := chatmodel.SessionInfo{
		ID:        s.id,
		ClientID:  s.clientID,
		State:     s.state,
		Typing:    s.typing > 0,
		Messages:  len(s.messages),
		CreatedAt: s.createdAt,
	}
	if s.snapshot != nil {
		snap := *s.snapshot
		info.Location = &snap
	}
	return info
}

// State returns the lifecycle state.
func (s *Session) State() chatmodel.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the log.
func (s *Session) Messages() []chatmodel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatmodel.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Location returns the cached snapshot, if any.
func (s *Session) Location() (geomodel.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return geomodel.Snapshot{}, false
	}
	return *s.snapshot, true
}

// SetCredentials replaces the credentials used for later sends.
func (s *Session) SetCredentials(creds auth.Credentials) {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
}

// Wait blocks until every round, acknowledgment and location fetch started
// so far has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Open starts the entry transition. Opening an opening or open session is a
// no-op; a session that has been closed cannot be reopened.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.state == chatmodel.StateClosing {
		return ErrSessionClosed
	}
	if s.state != chatmodel.StateClosed {
		return nil
	}

	s.setStateLocked(chatmodel.StateOpening)
	s.enterTimer = time.AfterFunc(s.timing.EnterDelay, s.enterOpen)
	return nil
}

func (s *Session) enterOpen() {
	s.mu.Lock()
	if s.state != chatmodel.StateOpening {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(chatmodel.StateOpen)
	fetch := s.snapshot == nil && s.fetching == 0
	if fetch {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if fetch {
		go s.detectLocation()
	}
}

// detectLocation is the opportunistic fetch on open. Its failure only adds
// an informational notice.
func (s *Session) detectLocation() {
	defer s.wg.Done()

	snap, err := s.acquireLocation()
	if err != nil {
		s.appendBot(geosvc.Notice(err))
		return
	}
	s.appendBot(locationDetected(snap))
}

// Close starts the exit transition. The session becomes terminal once the
// exit delay elapsed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.state == chatmodel.StateClosing {
		return
	}
	if s.enterTimer != nil {
		s.enterTimer.Stop()
	}
	s.setStateLocked(chatmodel.StateClosing)
	time.AfterFunc(s.timing.ExitDelay, s.finish)
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(chatmodel.StateClosed)
	s.ended = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.logger.Info("chat session closed")
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// Ended reports whether the session reached its terminal state.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Subscribe returns a stream of session events and a func to cancel it. The
// stream is closed when the session ends.
func (s *Session) Subscribe() (<-chan chatmodel.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan chatmodel.Event, subscriberBuffer)
	if s.ended {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				close(sub)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Session) publishLocked(ev chatmodel.Event) {
	ev.SessionID = s.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	for id, ch := range s.subs {
		select {
		case ch <- ev.Clone():
		default:
			s.logger.Warn("dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event", string(ev.Type)),
			)
		}
	}
}

func (s *Session) setStateLocked(state chatmodel.State) {
	s.state = state
	s.publishLocked(chatmodel.Event{Type: chatmodel.EventLifecycle, State: state})
}

// appendLocked adds msg to the log. It reports false once the session ended.
func (s *Session) appendLocked(msg chatmodel.Message) bool {
	if s.ended {
		return false
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg = msg.Clone()
	s.messages = append(s.messages, msg)
	s.publishLocked(chatmodel.Event{Type: chatmodel.EventMessage, Message: &msg})
	return true
}

func (s *Session) appendBot(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.appendLocked(chatmodel.Message{Text: text, Sender: chatmodel.SenderBot}) {
		s.logger.Debug("dropping reply for closed session")
	}
}

func (s *Session) beginTypingLocked() {
	s.typing++
	if s.typing == 1 {
		on := true
		s.publishLocked(chatmodel.Event{Type: chatmodel.EventTyping, Typing: &on})
	}
}

func (s *Session) endTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing == 0 {
		return
	}
	s.typing--
	if s.typing == 0 && !s.ended {
		off := false
		s.publishLocked(chatmodel.Event{Type: chatmodel.EventTyping, Typing: &off})
	}
}

// acquireLocation fetches a fix through the locator. Concurrent callers
// share one acquisition. A successful fix is cached on the session.
func (s *Session) acquireLocation() (geomodel.Snapshot, error) {
	v, err, _ := s.locate.Do("location", func() (any, error) {
		s.mu.Lock()
		s.fetching++
		s.mu.Unlock()

		snap, err := s.locator.Acquire(s.ctx)

		s.mu.Lock()
		s.fetching--
		if err == nil && !s.ended {
			cached := snap
			s.snapshot = &cached
			s.publishLocked(chatmodel.Event{Type: chatmodel.EventLocation, Location: &cached})
		}
		s.mu.Unlock()
		return snap, err
	})
	if err != nil {
		return geomodel.Snapshot{}, err
	}
	return v.(geomodel.Snapshot), nil
}
