package queue

import (
	"forager/app/config"
	"forager/app/util/metrics"
	"log/slog"

	"github.com/samber/do"
)

const defaultBufferSize = 64

var _ do.Shutdownable = (*Service)(nil)

type Service struct {
	queue chan Message
}

// Message is one inbound user message. Reply delivers the final text back to
// the transport it came from.
type Message struct {
	ConversationID string
	Identity       string
	Text           string
	Reply          func(text string)
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(cfg.Engine.QueueSize), nil
}

func NewService(size int) *Service {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &Service{
		queue: make(chan Message, size),
	}
}

// Add enqueues msg without blocking. It reports false when the queue is full
// or already shut down.
func (s *Service) Add(msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Admissions.WithLabelValues(metrics.AdmissionUnavailable).Inc()
			ok = false
		}
	}()

	select {
	case s.queue <- msg:
		return true
	default:
		slog.Warn("message queue is full", "conversation", msg.ConversationID)
		metrics.Admissions.WithLabelValues(metrics.AdmissionQueueFull).Inc()
		return false
	}
}

func (s *Service) Channel() <-chan Message {
	return s.queue
}

func (s *Service) Len() int {
	return len(s.queue)
}

func (s *Service) Shutdown() error {
	close(s.queue)

	return nil
}
