package engine

import (
	"context"
	"errors"
	"fmt"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/queue"
	"forager/app/service/usage"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/do"
)

const (
	ApologyText = "Sorry, I encountered an error processing your message. Please try again."

	workerBuffer = 16
)

type Chatter interface {
	Chat(ctx context.Context, conversationID, text string) (string, error)
}

type Governor interface {
	Admit(identity string) error
}

var (
	_ Chatter  = (*agent.Service)(nil)
	_ Governor = (*usage.Service)(nil)
)

type Service struct {
	chatter  Chatter
	governor Governor
	queueSvc *queue.Service
	workers  int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*agent.Service](di),
		do.MustInvoke[*usage.Service](di),
		do.MustInvoke[*queue.Service](di),
		cfg.Engine.Workers,
	), nil
}

func NewService(chatter Chatter, governor Governor, queueSvc *queue.Service, workers int) *Service {
	return &Service{
		chatter:  chatter,
		governor: governor,
		queueSvc: queueSvc,
		workers:  max(workers, 1),
	}
}

// Process admits one message and runs it through the agent. A rejected
// message returns a *usage.Rejection and never reaches the agent.
func (s *Service) Process(ctx context.Context, conversationID, identity, text string) (string, error) {
	if err := s.governor.Admit(identity); err != nil {
		return "", err
	}

	reply, err := s.chatter.Chat(ctx, conversationID, text)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	return reply, nil
}

// Run drains the queue until it is closed or ctx is done. Messages of one
// conversation always land on the same worker, so they are answered in order.
func (s *Service) Run(ctx context.Context) {
	lanes := make([]chan queue.Message, s.workers)

	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan queue.Message, workerBuffer)

		wg.Add(1)
		go func(lane <-chan queue.Message) {
			defer wg.Done()
			s.work(ctx, lane)
		}(lanes[i])
	}

	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return
			}

			select {
			case lanes[s.lane(msg.ConversationID)] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Service) lane(conversationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *Service) work(ctx context.Context, lane <-chan queue.Message) {
	for msg := range lane {
		if ctx.Err() != nil {
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Service) handle(ctx context.Context, msg queue.Message) {
	start := time.Now()

	reply, err := s.Process(ctx, msg.ConversationID, msg.Identity, msg.Text)

	var rejection *usage.Rejection
	switch {
	case errors.As(err, &rejection):
		slog.Info("Message rejected",
			"conversation", msg.ConversationID,
			"identity", msg.Identity,
			"limit", rejection.Limit,
		)
		reply = rejection.Reason
	case err != nil:
		slog.Error("Message processing failed",
			"conversation", msg.ConversationID,
			"identity", msg.Identity,
			"error", err,
		)
		reply = ApologyText
	default:
		slog.Info("Processed message",
			"conversation", msg.ConversationID,
			"identity", msg.Identity,
			"duration", time.Since(start),
		)
	}

	if msg.Reply != nil {
		msg.Reply(reply)
	}
}
