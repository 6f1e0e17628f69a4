package sla

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-helpdesk/internal/features/automation"
	"go-helpdesk/internal/features/ticket"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// EventSink receives the synthetic SLA events; satisfied by the
// automation dispatcher.
type EventSink interface {
	Submit(event automation.Event)
}

const sweepWorkers = 8

// Monitor periodically sweeps open tickets and emits SLA_WARNING,
// SLA_BREACH and UNASSIGNED_TIMEOUT events. Each transition is one-shot
// per deadline: the decision state lives on the ticket document, so
// overlapping sweeps, restarts and multiple processes agree on who
// already fired.
type Monitor struct {
	tickets ticket.TicketRepository
	events  EventSink
	logger  *zap.Logger

	interval          time.Duration
	warningWindow     time.Duration
	unassignedTimeout time.Duration

	// now is replaceable in tests
	now func() time.Time

	scheduler *cron.Cron
	inFlight  atomic.Bool
}

func NewMonitor(
	tickets ticket.TicketRepository,
	events EventSink,
	interval time.Duration,
	warningWindow time.Duration,
	unassignedTimeout time.Duration,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		tickets:           tickets,
		events:            events,
		logger:            logger,
		interval:          interval,
		warningWindow:     warningWindow,
		unassignedTimeout: unassignedTimeout,
		now:               time.Now,
	}
}

func (m *Monitor) Start() error {
	m.scheduler = cron.New()
	_, err := m.scheduler.AddFunc(fmt.Sprintf("@every %s", m.interval), func() {
		m.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule SLA sweep: %w", err)
	}
	m.scheduler.Start()
	m.logger.Info("SLA monitor started", zap.Duration("interval", m.interval))
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	stopped := m.scheduler.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass over the candidate tickets. At most one sweep is in
// flight; a tick that arrives while the previous pass still runs is
// skipped rather than stacked.
func (m *Monitor) Sweep(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn("skipping SLA sweep, previous sweep still running")
		return
	}
	defer m.inFlight.Store(false)

	now := m.now().UTC()
	m.sweepDeadlines(ctx, now)
	m.sweepUnassigned(ctx, now)
}

func (m *Monitor) sweepDeadlines(ctx context.Context, now time.Time) {
	tickets, err := m.tickets.FindOpenWithDeadline(ctx)
	if err != nil {
		m.logger.Error("SLA sweep failed to list tickets", zap.Error(err))
		return
	}

	work := make(chan *ticket.Ticket)
	var wg sync.WaitGroup
	for i := 0; i < sweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				m.checkTicket(ctx, t, now)
			}
		}()
	}
	for i := range tickets {
		work <- &tickets[i]
	}
	close(work)
	wg.Wait()
}

func (m *Monitor) checkTicket(ctx context.Context, t *ticket.Ticket, now time.Time) {
	if t.SLADeadline == nil {
		return
	}
	deadline := *t.SLADeadline

	if !t.SLABreached && !now.Before(deadline) {
		m.markBreached(ctx, t, deadline)
		return
	}

	if t.SLABreached || now.Before(deadline.Add(-m.warningWindow)) {
		return
	}
	if t.SLAWarnedFor != nil && t.SLAWarnedFor.Equal(deadline) {
		// already warned for this deadline value
		return
	}
	m.markWarned(ctx, t, deadline)
}

// markBreached stamps the breach flag under the version check before
// emitting; the loser of a concurrent sweep skips, so exactly one
// SLA_BREACH fires per deadline.
func (m *Monitor) markBreached(ctx context.Context, t *ticket.Ticket, deadline time.Time) {
	err := m.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{"sla_breached": true})
	if err != nil {
		m.logger.Debug("breach stamp lost, leaving for next sweep",
			zap.String("ticket_id", t.ID.Hex()),
			zap.Error(err),
		)
		return
	}

	m.logger.Info("SLA breached",
		zap.String("ticket_id", t.ID.Hex()),
		zap.Time("deadline", deadline),
	)
	m.events.Submit(automation.Event{
		Trigger:  automation.TriggerSLABreach,
		TicketID: t.ID,
		Payload:  map[string]interface{}{"deadline": deadline},
	})
}

func (m *Monitor) markWarned(ctx context.Context, t *ticket.Ticket, deadline time.Time) {
	err := m.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{"sla_warned_for": deadline})
	if err != nil {
		m.logger.Debug("warning stamp lost, leaving for next sweep",
			zap.String("ticket_id", t.ID.Hex()),
			zap.Error(err),
		)
		return
	}

	m.events.Submit(automation.Event{
		Trigger:  automation.TriggerSLAWarning,
		TicketID: t.ID,
		Payload:  map[string]interface{}{"deadline": deadline},
	})
}

// sweepUnassigned emits UNASSIGNED_TIMEOUT for tickets past the grace
// period; the store query already excludes tickets that were stamped on a
// previous sweep.
func (m *Monitor) sweepUnassigned(ctx context.Context, now time.Time) {
	if m.unassignedTimeout <= 0 {
		return
	}

	cutoff := now.Add(-m.unassignedTimeout)
	tickets, err := m.tickets.FindUnassignedSince(ctx, cutoff)
	if err != nil {
		m.logger.Error("unassigned sweep failed to list tickets", zap.Error(err))
		return
	}

	for i := range tickets {
		t := &tickets[i]
		err := m.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{"unassigned_notified_at": now})
		if err != nil {
			continue
		}
		m.events.Submit(automation.Event{
			Trigger:  automation.TriggerUnassignedTimeout,
			TicketID: t.ID,
			Payload:  map[string]interface{}{"unassigned_since": t.CreatedAt},
		})
	}
}
