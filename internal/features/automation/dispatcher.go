package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-helpdesk/internal/connectors"
	"go-helpdesk/internal/features/ticket"
	"go-helpdesk/pkg/condition"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Dispatcher receives lifecycle events and runs the matching active rules
// against them. Submission is fire-and-forget into a bounded queue; a
// worker pool drains it, so a burst of events never blocks the producers.
type Dispatcher struct {
	cache    *RuleCache
	tickets  ticket.TicketRepository
	orders   connectors.OrderContextProvider
	executor *ActionExecutor
	recorder ExecutionRepository
	logger   *zap.Logger

	queue   chan Event
	workers int
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDispatcher(
	cache *RuleCache,
	tickets ticket.TicketRepository,
	orders connectors.OrderContextProvider,
	executor *ActionExecutor,
	recorder ExecutionRepository,
	queueSize int,
	workers int,
	logger *zap.Logger,
) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		cache:    cache,
		tickets:  tickets,
		orders:   orders,
		executor: executor,
		recorder: recorder,
		logger:   logger,
		queue:    make(chan Event, queueSize),
		workers:  workers,
		done:     make(chan struct{}),
	}
}

// SubmitTicketEvent adapts the ticket feature's event emission; the string
// trigger keeps the ticket package decoupled from this one.
func (d *Dispatcher) SubmitTicketEvent(trigger string, ticketID primitive.ObjectID, payload map[string]interface{}) {
	d.Submit(Event{
		Trigger:  TriggerType(trigger),
		TicketID: ticketID,
		Payload:  payload,
	})
}

// Submit queues the event for processing and returns immediately. A full
// queue drops the event with a logged diagnostic.
func (d *Dispatcher) Submit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if !KnownTrigger(event.Trigger) {
		d.logger.Error("dropping event with unknown trigger",
			zap.String("trigger", string(event.Trigger)),
			zap.String("ticket_id", event.TicketID.Hex()),
		)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event dropped, queue full",
			zap.String("event_id", event.ID),
			zap.String("trigger", string(event.Trigger)),
			zap.String("ticket_id", event.TicketID.Hex()),
		)
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	d.once.Do(func() { close(d.done) })

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case event := <-d.queue:
			d.process(context.Background(), event)
		}
	}
}

// process runs one event end to end: load the rules and the ticket, build
// the snapshot, then for each rule in priority order claim, execute and
// finalize. Rules are independent; one rule's failure never stops the
// next.
func (d *Dispatcher) process(ctx context.Context, event Event) {
	rules, err := d.cache.Get(ctx, event.Trigger)
	if err != nil {
		d.logger.Error("failed to load rules for event",
			zap.String("event_id", event.ID),
			zap.String("trigger", string(event.Trigger)),
			zap.Error(err),
		)
		return
	}
	if len(rules) == 0 {
		return
	}

	t, err := d.tickets.FindByID(ctx, event.TicketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			d.logger.Warn("event for unknown ticket",
				zap.String("event_id", event.ID),
				zap.String("ticket_id", event.TicketID.Hex()),
			)
			return
		}
		d.logger.Error("failed to load ticket for event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return
	}

	snapshot := d.buildSnapshot(ctx, t, event)

	for i := range rules {
		rule := &rules[i]
		if !condition.Matches(rule.Conditions, snapshot) {
			continue
		}
		t = d.runRule(ctx, rule, t, event, snapshot)
	}
}

// buildSnapshot is the flat view rule conditions evaluate against: ticket
// fields at the top level, the event payload under "event", and the ERP
// order aggregates under "order" when a connector is configured.
func (d *Dispatcher) buildSnapshot(ctx context.Context, t *ticket.Ticket, event Event) map[string]interface{} {
	snapshot := t.Snapshot()
	snapshot["trigger"] = string(event.Trigger)
	if event.Payload != nil {
		snapshot["event"] = event.Payload
	}

	if d.orders != nil {
		orderCtx, err := d.orders.OrderContext(ctx, t.CustomerID.Hex())
		if err != nil {
			d.logger.Warn("order context lookup failed",
				zap.String("ticket_id", t.ID.Hex()),
				zap.Error(err),
			)
		} else if orderCtx != nil {
			snapshot["order"] = orderCtx
		}
	}
	return snapshot
}

func (d *Dispatcher) runRule(ctx context.Context, rule *AutomationRule, t *ticket.Ticket, event Event, snapshot map[string]interface{}) *ticket.Ticket {
	claimed, err := d.recorder.TryClaim(ctx, rule, event)
	if err != nil {
		d.logger.Error("failed to claim execution",
			zap.String("rule_id", rule.ID.Hex()),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return t
	}
	if !claimed {
		// redelivered event, already executed (or executing) elsewhere
		return t
	}

	results, t := d.executor.Execute(ctx, rule, t, snapshot)
	outcome := OutcomeOf(results)

	if err := d.recorder.Finalize(ctx, rule.ID, event.ID, outcome, results); err != nil {
		d.logger.Error("failed to finalize execution record",
			zap.String("rule_id", rule.ID.Hex()),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}

	d.logger.Info("rule executed",
		zap.String("rule_id", rule.ID.Hex()),
		zap.String("rule_name", rule.Name),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", t.ID.Hex()),
		zap.String("outcome", string(outcome)),
	)
	return t
}
