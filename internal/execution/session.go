package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hip3-taker/internal/transport"
	"hip3-taker/pkg/types"
)

// SendResult classifies the immediate outcome of Send; correlation of the
// eventual post-id reply, if any, happens separately via Run's dispatch loop.
type SendResult string

const (
	SendSent         SendResult = "Sent"
	SendRateLimited  SendResult = "RateLimited"
	SendDisconnected SendResult = "Disconnected"
	SendError        SendResult = "Error"
)

// InboundReply is the routed venue response to one post-id.
type InboundReply struct {
	PostID  int64
	Payload json.RawMessage
	Err     error
}

// postFrame mirrors the subset of the venue's inbound frame shape needed to
// correlate a reply with its originating post-id; the rest of the frame
// (order updates, fills, book data) is parsed by the feed/order-update
// consumers, not here.
type postFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type postReplyData struct {
	ID       int64           `json:"id"`
	Response json.RawMessage `json:"response"`
}

// Session is the duplex request/response session layered over the raw
// Transport. Send is fire-and-forget at the transport level; Run's dispatch
// loop matches replies back to waiters by post-id, and SendAndWait bounds
// each wait with the session timeout.
type Session struct {
	transport transport.Transport
	logger    *slog.Logger
	timeout   time.Duration

	mu      sync.Mutex
	waiters map[int64]chan InboundReply

	postIDCounter int64 // atomic
}

// NewSession builds a session layered over transport. timeout bounds how
// long SendAndWait waits for a reply before returning a timeout error
// wrapping context.DeadlineExceeded.
func NewSession(t transport.Transport, timeout time.Duration, logger *slog.Logger) *Session {
	return &Session{
		transport: t,
		logger:    logger.With("component", "session"),
		timeout:   timeout,
		waiters:   make(map[int64]chan InboundReply),
	}
}

// NextPostID returns a fresh monotonically increasing post-id.
func (s *Session) NextPostID() int64 {
	return atomic.AddInt64(&s.postIDCounter, 1)
}

// RegisterWaiter allocates a reply channel for postID and returns a cleanup
// function the caller must invoke once it stops waiting (success, timeout,
// or cancellation) to avoid leaking the map entry.
func (s *Session) RegisterWaiter(postID int64) (<-chan InboundReply, func()) {
	ch := make(chan InboundReply, 1)
	s.mu.Lock()
	s.waiters[postID] = ch
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		delete(s.waiters, postID)
		s.mu.Unlock()
	}
	return ch, cleanup
}

// Send marshals and transmits envelope, returning immediately once the
// frame is handed to the transport - it does not wait for the venue's reply.
// Callers that need the reply should RegisterWaiter(envelope.ID) before
// calling Send to avoid a race against Run's dispatch loop.
func (s *Session) Send(ctx context.Context, envelope types.PostEnvelope) (SendResult, error) {
	if !s.transport.IsReady() {
		return SendDisconnected, errors.New("session: transport not ready")
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return SendError, fmt.Errorf("session: marshal envelope: %w", err)
	}

	if err := s.transport.SendText(ctx, data); err != nil {
		return SendDisconnected, fmt.Errorf("session: send: %w", err)
	}
	return SendSent, nil
}

// SendAndWait is the common case: send the envelope and block (up to the
// session's configured timeout or ctx's deadline, whichever is sooner) for
// its correlated reply.
func (s *Session) SendAndWait(ctx context.Context, envelope types.PostEnvelope) (InboundReply, error) {
	ch, cleanup := s.RegisterWaiter(envelope.ID)
	defer cleanup()

	if result, err := s.Send(ctx, envelope); err != nil {
		return InboundReply{}, fmt.Errorf("session: %s: %w", result, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, reply.Err
	case <-timer.C:
		return InboundReply{}, fmt.Errorf("session: post id %d: %w", envelope.ID, context.DeadlineExceeded)
	case <-ctx.Done():
		return InboundReply{}, ctx.Err()
	}
}

// Run reads inbound frames from the transport and routes replies to their
// waiter by post-id until ctx is cancelled. A frame with no registered
// waiter (already timed out, or an unsolicited push) is logged and dropped.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.transport.Inbound():
			if !ok {
				return
			}
			s.dispatch(raw)
		}
	}
}

func (s *Session) dispatch(raw []byte) {
	var frame postFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Channel != "post" {
		return
	}

	var data postReplyData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		s.logger.Warn("session: malformed post reply", "error", err)
		return
	}

	s.mu.Lock()
	ch, ok := s.waiters[data.ID]
	if ok {
		delete(s.waiters, data.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("session: reply with no waiter, dropping", "post_id", data.ID)
		return
	}

	select {
	case ch <- InboundReply{PostID: data.ID, Payload: data.Response}:
	default:
	}
}
