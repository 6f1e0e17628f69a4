package ticket

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// EventSink receives lifecycle events for the automation engine. Submission
// is fire-and-forget; the trigger dispatcher processes asynchronously. The
// concrete sink is the automation dispatcher, wired in main to avoid a
// package cycle.
type EventSink interface {
	SubmitTicketEvent(trigger string, ticketID primitive.ObjectID, payload map[string]interface{})
}

// Trigger kind names, as the automation engine spells them.
const (
	eventTicketCreated   = "TICKET_CREATED"
	eventStatusChanged   = "STATUS_CHANGED"
	eventMessageReceived = "MESSAGE_RECEIVED"
)

type TicketService interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	List(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error)
	UpdateStatus(ctx context.Context, id string, to TicketStatus) error
	Assign(ctx context.Context, id string, agentID string) error
	AddMessage(ctx context.Context, ticketID string, authorID string, body string, internal bool) (*Message, error)
	Messages(ctx context.Context, ticketID string, limit int64) ([]Message, error)
}

type TicketServiceImpl struct {
	Repo        TicketRepository
	MessageRepo MessageRepository
	Events      EventSink
	Logger      *zap.Logger
}

func NewTicketService(repo TicketRepository, messageRepo MessageRepository, events EventSink, logger *zap.Logger) TicketService {
	return &TicketServiceImpl{
		Repo:        repo,
		MessageRepo: messageRepo,
		Events:      events,
		Logger:      logger,
	}
}

func (s *TicketServiceImpl) Create(ctx context.Context, t *Ticket) error {
	if err := s.Repo.Create(ctx, t); err != nil {
		return err
	}

	s.Events.SubmitTicketEvent(eventTicketCreated, t.ID, map[string]interface{}{
		"subject":  t.Subject,
		"priority": string(t.Priority),
	})
	return nil
}

func (s *TicketServiceImpl) Get(ctx context.Context, id string) (*Ticket, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.Repo.FindByID(ctx, oid)
}

func (s *TicketServiceImpl) List(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error) {
	return s.Repo.FindAll(ctx, filter, page, limit)
}

func (s *TicketServiceImpl) UpdateStatus(ctx context.Context, id string, to TicketStatus) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	var from TicketStatus
	// One retry on a lost CAS race, then surface the conflict.
	for attempt := 0; attempt < 2; attempt++ {
		t, err := s.Repo.FindByID(ctx, oid)
		if err != nil {
			return err
		}
		from = t.Status
		err = s.Repo.UpdateStatus(ctx, oid, t.Version, from, to)
		if err == ErrVersionConflict && attempt == 0 {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	s.Events.SubmitTicketEvent(eventStatusChanged, oid, map[string]interface{}{
		"old_status": string(from),
		"new_status": string(to),
	})
	return nil
}

func (s *TicketServiceImpl) Assign(ctx context.Context, id string, agentID string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	agentOID, err := primitive.ObjectIDFromHex(agentID)
	if err != nil {
		return ErrNotFound
	}

	for attempt := 0; attempt < 2; attempt++ {
		t, err := s.Repo.FindByID(ctx, oid)
		if err != nil {
			return err
		}
		err = s.Repo.UpdateFields(ctx, oid, t.Version, bson.M{"assigned_to": agentOID})
		if err == ErrVersionConflict && attempt == 0 {
			continue
		}
		return err
	}
	return nil
}

func (s *TicketServiceImpl) AddMessage(ctx context.Context, ticketID string, authorID string, body string, internal bool) (*Message, error) {
	tid, err := primitive.ObjectIDFromHex(ticketID)
	if err != nil {
		return nil, ErrNotFound
	}
	aid, err := primitive.ObjectIDFromHex(authorID)
	if err != nil {
		return nil, ErrNotFound
	}

	if _, err := s.Repo.FindByID(ctx, tid); err != nil {
		return nil, err
	}

	msg := &Message{
		TicketID: tid,
		AuthorID: aid,
		Body:     body,
		Internal: internal,
	}
	if err := s.MessageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	if !internal {
		s.Events.SubmitTicketEvent(eventMessageReceived, tid, map[string]interface{}{
			"author_id": authorID,
		})
	}
	return msg, nil
}

func (s *TicketServiceImpl) Messages(ctx context.Context, ticketID string, limit int64) ([]Message, error) {
	tid, err := primitive.ObjectIDFromHex(ticketID)
	if err != nil {
		return nil, ErrNotFound
	}
	if _, err := s.Repo.FindByID(ctx, tid); err != nil {
		return nil, err
	}
	return s.MessageRepo.FindByTicket(ctx, tid, limit)
}
