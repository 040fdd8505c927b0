package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
)

// Requester forwards a location request to a connected browser.
type Requester interface {
	RequestLocation(ctx context.Context, requestID string, opts geomodel.Options) error
}

type outcome struct {
	snap geomodel.Snapshot
	err  error
}

type pendingRequest struct {
	opts geomodel.Options
	done chan outcome
}

// RemoteProvider asks the browser attached to a session for its position
// and waits for the correlated answer. Requests made before a browser
// attaches wait for it until their deadline.
type RemoteProvider struct {
	mu        sync.Mutex
	requester Requester
	// attached is closed while a requester is set.
	attached chan struct{}
	pending  map[string]pendingRequest
}

// NewRemoteProvider creates a provider with no browser attached.
func NewRemoteProvider() *RemoteProvider {
	return &RemoteProvider{
		attached: make(chan struct{}),
		pending:  make(map[string]pendingRequest),
	}
}

// Attach routes future requests to r. Requests still waiting on a replaced
// browser are re-sent to r. The returned func detaches r again and fails the
// requests still waiting on it.
func (p *RemoteProvider) Attach(r Requester) func() {
	p.mu.Lock()
	previous := p.requester
	p.requester = r
	if previous == nil {
		close(p.attached)
	}
	var moved map[string]pendingRequest
	if previous != nil && previous != r {
		moved = make(map[string]pendingRequest, len(p.pending))
		for id, req := range p.pending {
			moved[id] = req
		}
	}
	p.mu.Unlock()

	for id, req := range moved {
		if err := r.RequestLocation(context.Background(), id, req.opts); err != nil {
			p.complete(id, outcome{err: &geomodel.Error{Code: geomodel.PositionUnavailable, Err: err}})
		}
	}

	return func() {
		p.mu.Lock()
		if p.requester != r {
			p.mu.Unlock()
			return
		}
		p.requester = nil
		p.attached = make(chan struct{})
		waiting := p.pending
		p.pending = make(map[string]pendingRequest)
		p.mu.Unlock()

		for _, req := range waiting {
			req.done <- outcome{err: &geomodel.Error{Code: geomodel.PositionUnavailable, Err: errors.New("browser disconnected")}}
		}
	}
}

// Position implements Provider.
func (p *RemoteProvider) Position(ctx context.Context, opts geomodel.Options) (geomodel.Snapshot, error) {
	id := uuid.NewString()
	done := make(chan outcome, 1)

	requester, err := p.register(ctx, id, pendingRequest{opts: opts, done: done})
	if err != nil {
		return geomodel.Snapshot{}, err
	}
	defer p.forget(id)

	if err := requester.RequestLocation(ctx, id, opts); err != nil {
		return geomodel.Snapshot{}, &geomodel.Error{Code: geomodel.PositionUnavailable, Err: err}
	}

	select {
	case out := <-done:
		return out.snap, out.err
	case <-ctx.Done():
		return geomodel.Snapshot{}, ctx.Err()
	}
}

// register waits for a browser and records the request as pending on it.
func (p *RemoteProvider) register(ctx context.Context, id string, req pendingRequest) (Requester, error) {
	for {
		p.mu.Lock()
		if p.requester != nil {
			requester := p.requester
			p.pending[id] = req
			p.mu.Unlock()
			return requester, nil
		}
		attached := p.attached
		p.mu.Unlock()

		select {
		case <-attached:
		case <-ctx.Done():
			return nil, &geomodel.Error{Code: geomodel.PositionUnavailable, Err: fmt.Errorf("no browser attached: %w", ctx.Err())}
		}
	}
}

// Resolve completes a pending request with a position.
func (p *RemoteProvider) Resolve(requestID string, snap geomodel.Snapshot) bool {
	return p.complete(requestID, outcome{snap: snap})
}

// Reject completes a pending request with a coded failure.
func (p *RemoteProvider) Reject(requestID string, code geomodel.ErrorCode, message string) bool {
	var cause error
	if message != "" {
		cause = errors.New(message)
	}
	return p.complete(requestID, outcome{err: &geomodel.Error{Code: code, Err: cause}})
}

func (p *RemoteProvider) complete(requestID string, out outcome) bool {
	p.mu.Lock()
	req, ok := p.pending[requestID]
	delete(p.pending, requestID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	req.done <- out
	return true
}

func (p *RemoteProvider) forget(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}
