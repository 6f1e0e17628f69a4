package triage

import (
	"context"
	"time"

	"go-helpdesk/internal/features/ticket"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// queuePageSize caps how many tickets one queue build loads. A backlog
// beyond it is ranked on the newest page only and logged.
const queuePageSize = 1000

// QueueView is the ranked triage board: four sections, each sorted by
// descending urgency score.
type QueueView struct {
	Urgent          []ticket.Ticket `json:"urgent"`
	ToProcess       []ticket.Ticket `json:"to_process"`
	WaitingCustomer []ticket.Ticket `json:"waiting_customer"`
	Resolved        []ticket.Ticket `json:"resolved"`
}

type QueueService interface {
	BuildQueue(ctx context.Context, filter bson.M) (*QueueView, error)
	Next(ctx context.Context, excludeID string) (*ticket.Ticket, error)
}

type QueueServiceImpl struct {
	TicketRepo ticket.TicketRepository
	Logger     *zap.Logger
}

func NewQueueService(ticketRepo ticket.TicketRepository, logger *zap.Logger) QueueService {
	return &QueueServiceImpl{
		TicketRepo: ticketRepo,
		Logger:     logger,
	}
}

func (s *QueueServiceImpl) BuildQueue(ctx context.Context, filter bson.M) (*QueueView, error) {
	tickets, total, err := s.TicketRepo.FindAll(ctx, filter, 1, queuePageSize)
	if err != nil {
		return nil, err
	}
	s.warnIfTruncated("queue", total, len(tickets))

	now := time.Now()
	view := &QueueView{
		Urgent:          []ticket.Ticket{},
		ToProcess:       []ticket.Ticket{},
		WaitingCustomer: []ticket.Ticket{},
		Resolved:        []ticket.Ticket{},
	}
	for _, t := range tickets {
		switch Score(&t, now).Section {
		case SectionUrgent:
			view.Urgent = append(view.Urgent, t)
		case SectionWaitingCustomer:
			view.WaitingCustomer = append(view.WaitingCustomer, t)
		case SectionResolved:
			view.Resolved = append(view.Resolved, t)
		default:
			view.ToProcess = append(view.ToProcess, t)
		}
	}

	view.Urgent = SortByPriority(view.Urgent, now)
	view.ToProcess = SortByPriority(view.ToProcess, now)
	view.WaitingCustomer = SortByPriority(view.WaitingCustomer, now)
	view.Resolved = SortByPriority(view.Resolved, now)
	return view, nil
}

func (s *QueueServiceImpl) Next(ctx context.Context, excludeID string) (*ticket.Ticket, error) {
	exclude := primitive.NilObjectID
	if excludeID != "" {
		oid, err := primitive.ObjectIDFromHex(excludeID)
		if err == nil {
			exclude = oid
		}
	}

	tickets, total, err := s.TicketRepo.FindAll(ctx, bson.M{
		"status": bson.M{"$nin": []ticket.TicketStatus{ticket.TicketStatusResolved, ticket.TicketStatusClosed}},
	}, 1, queuePageSize)
	if err != nil {
		return nil, err
	}
	s.warnIfTruncated("next", total, len(tickets))

	return NextTicket(tickets, time.Now(), exclude), nil
}

func (s *QueueServiceImpl) warnIfTruncated(op string, total int64, fetched int) {
	if total > int64(fetched) {
		s.Logger.Warn("triage backlog exceeds queue page, ranking a partial view",
			zap.String("operation", op),
			zap.Int64("total", total),
			zap.Int("fetched", fetched),
		)
	}
}
