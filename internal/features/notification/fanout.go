package notification

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("notification queue full")

// Fanout owns the bounded delivery queue. Enqueue never blocks the caller:
// when the queue is full the request is dropped with ErrQueueFull and the
// producer carries on. The worker persists each notification before
// attempting live push, so a dropped or failed push never loses the record.
type Fanout struct {
	repo   NotificationRepository
	hub    *Hub
	logger *zap.Logger

	queue  chan Request
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewFanout(repo NotificationRepository, hub *Hub, queueSize int, logger *zap.Logger) *Fanout {
	return &Fanout{
		repo:   repo,
		hub:    hub,
		logger: logger,
		queue:  make(chan Request, queueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Enqueue hands a notification request to the delivery worker.
func (f *Fanout) Enqueue(req Request) error {
	select {
	case f.queue <- req:
		return nil
	default:
		f.logger.Warn("notification dropped, queue full",
			zap.String("user_id", req.RecipientID.Hex()),
			zap.String("type", string(req.Type)),
		)
		return ErrQueueFull
	}
}

func (f *Fanout) Start() {
	go f.run()
}

// Stop drains nothing: queued requests past the signal are abandoned,
// matching the best-effort contract of live delivery.
func (f *Fanout) Stop(ctx context.Context) error {
	f.once.Do(func() { close(f.done) })
	select {
	case <-f.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) run() {
	defer close(f.closed)
	for {
		select {
		case <-f.done:
			return
		case req := <-f.queue:
			f.deliver(req)
		}
	}
}

func (f *Fanout) deliver(req Request) {
	n := &Notification{
		UserID:   req.RecipientID,
		TicketID: req.TicketID,
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Body,
	}
	if err := f.repo.Create(context.Background(), n); err != nil {
		f.logger.Error("failed to persist notification",
			zap.String("user_id", req.RecipientID.Hex()),
			zap.Error(err),
		)
		return
	}
	f.hub.Push(req.RecipientID, n)
}
