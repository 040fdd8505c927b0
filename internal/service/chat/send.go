package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
	"github.com/jansunwai/assistant/internal/service/auth"
)

// round is one logical submission: the first request plus its optional
// coordinate continuation. The typing indicator stays on for the whole
// round.
type round struct {
	creds   auth.Credentials
	request intakemodel.Request
	enrich  *enrichment
	waiting bool // guarded by Session.mu
	noticed bool // guarded by Session.mu
}

// Send appends the user's message and submits it to the intake endpoint.
// It returns once the message is in the log; the backend exchange runs in
// the background and its replies are appended as they arrive.
func (s *Session) Send(ctx context.Context, text string) (chatmodel.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chatmodel.Message{}, ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return chatmodel.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || !s.state.Accepting() {
		return chatmodel.Message{}, ErrSessionClosed
	}
	if !s.creds.Authenticated(time.Now()) {
		s.publishLocked(chatmodel.Event{Type: chatmodel.EventAuthRequired})
		return chatmodel.Message{}, ErrAuthRequired
	}

	msg := chatmodel.Message{Text: text, Sender: chatmodel.SenderUser}
	req := intakemodel.Request{RawText: text}
	if s.snapshot != nil {
		snap := *s.snapshot
		msg.Location = &snap
		req = req.WithCoordinates(snap.Latitude, snap.Longitude)
	}
	s.appendLocked(msg)
	msg = s.messages[len(s.messages)-1].Clone()

	s.beginTypingLocked()
	s.wg.Add(1)
	r := &round{creds: s.creds, request: req, enrich: newEnrichment(intakemodel.Request{RawText: text})}
	go s.run(r)

	return msg, nil
}

func (s *Session) run(r *round) {
	defer s.wg.Done()
	defer s.endTyping()

	resp, err := s.submit(r, r.request)
	if err != nil {
		s.logger.Error("intake submission failed", zap.Error(err))
		s.appendBot(textTrouble)
		return
	}

	answer := describe(resp)
	s.appendBot(answer.text)
	if answer.needsCoordinates {
		s.continueWithCoordinates(r)
	}
}

// continueWithCoordinates resubmits the original text once with a location
// fix. It never prompts the user.
func (s *Session) continueWithCoordinates(r *round) {
	if !r.enrich.begin() {
		return
	}
	defer r.enrich.finish()

	snap, ok := s.Location()
	if !ok {
		var err error
		snap, err = s.acquireLocation()
		if err != nil {
			s.logger.Info("location for complaint unavailable", zap.Error(err))
			s.appendBot(textLocationFailed)
			return
		}
	}

	req, ok := r.enrich.resubmit(snap.Latitude, snap.Longitude)
	if !ok {
		return
	}

	resp, err := s.submit(r, req)
	if err != nil {
		s.logger.Error("intake resubmission failed", zap.Error(err))
		s.appendBot(textTrouble)
		return
	}

	// a second "coordinates needed" answer ends the round with its message
	s.appendBot(describe(resp).text)
}

// submit calls the intake endpoint within the session lifetime and posts
// one "still working" notice per round if the answer is slow.
func (s *Session) submit(r *round, req intakemodel.Request) (intakemodel.Response, error) {
	s.mu.Lock()
	r.waiting = true
	s.mu.Unlock()

	var slow *time.Timer
	if d := s.timing.SlowNotice; d > 0 {
		slow = time.AfterFunc(d, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if r.waiting && !r.noticed {
				r.noticed = true
				s.appendLocked(chatmodel.Message{Text: textStillWorking, Sender: chatmodel.SenderBot})
			}
		})
	}

	resp, err := s.intake.Submit(s.ctx, r.creds, req)

	if slow != nil {
		slow.Stop()
	}
	s.mu.Lock()
	r.waiting = false
	s.mu.Unlock()

	return resp, err
}
