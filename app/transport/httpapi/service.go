package httpapi

import (
	"context"
	"errors"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/engine"
	"forager/app/service/knowledge"
	"forager/app/service/tools"
	"forager/app/service/usage"
	"forager/app/util/metrics"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	shutdownTimeout = 10 * time.Second
	defaultResults  = 5
)

type Processor interface {
	Process(ctx context.Context, conversationID, identity, text string) (string, error)
}

type Agent interface {
	ClearHistory(conversationID string)
	DocumentCount(ctx context.Context) (int, error)
	Seed(ctx context.Context, subreddit string, limit int) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
}

var (
	_ Processor = (*engine.Service)(nil)
	_ Agent     = (*agent.Service)(nil)
	_ Searcher  = (*knowledge.Store)(nil)
)

type Service struct {
	addr  string
	app   *fiber.App
	valid *validator.Validate

	processor Processor
	agent     Agent
	searcher  Searcher
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Identity       string `json:"identity"`
	Text           string `json:"text" validate:"required"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type SeedRequest struct {
	Subreddit string `json:"subreddit" validate:"required"`
	Limit     int    `json:"limit" validate:"gte=0"`
}

type SeedResponse struct {
	Result string `json:"result"`
}

type StatusResponse struct {
	Documents int `json:"documents"`
}

type SearchResult struct {
	Document  string             `json:"document"`
	Metadata  knowledge.Metadata `json:"metadata"`
	Distance  float32            `json:"distance"`
	ThreadURL string             `json:"thread_url,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		cfg.HTTP.Addr,
		do.MustInvoke[*engine.Service](di),
		do.MustInvoke[*agent.Service](di),
		do.MustInvoke[*knowledge.Store](di),
	), nil
}

func NewService(addr string, processor Processor, agentSvc Agent, searcher Searcher) *Service {
	s := &Service{
		addr:      addr,
		valid:     validator.New(),
		processor: processor,
		agent:     agentSvc,
		searcher:  searcher,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())

	api := app.Group("/api")
	api.Post("/chat", s.chat)
	api.Delete("/conversations/:id", s.clear)
	api.Get("/status", s.status)
	api.Post("/seed", s.seed)
	api.Get("/search", s.search)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	s.app = app

	return s
}

func (s *Service) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return oops.In("httpapi").Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return oops.In("httpapi").Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Service) chat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}

	identity := req.Identity
	if identity == "" {
		identity = c.IP()
	}

	reply, err := s.processor.Process(c.UserContext(), "http:"+req.ConversationID, "http:"+identity, req.Text)

	var rejection *usage.Rejection
	switch {
	case errors.As(err, &rejection):
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: rejection.Reason})
	case err != nil:
		slog.Error("Chat request failed", "conversation", req.ConversationID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: engine.ApologyText})
	}

	return c.JSON(ChatResponse{Reply: reply})
}

func (s *Service) clear(c *fiber.Ctx) error {
	s.agent.ClearHistory("http:" + c.Params("id"))

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) status(c *fiber.Ctx) error {
	count, err := s.agent.DocumentCount(c.UserContext())
	if err != nil {
		return err
	}

	return c.JSON(StatusResponse{Documents: count})
}

func (s *Service) seed(c *fiber.Ctx) error {
	var req SeedRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}

	result, err := s.agent.Seed(c.UserContext(), req.Subreddit, req.Limit)
	if err != nil {
		return err
	}

	return c.JSON(SeedResponse{Result: result})
}

func (s *Service) search(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query parameter q is required")
	}

	docType := c.Query("doc_type")
	if docType != "" && docType != knowledge.DocTypeContent && docType != knowledge.DocTypeSummary {
		return fiber.NewError(fiber.StatusBadRequest, "doc_type must be thread_content or summary")
	}

	results, err := s.searcher.Search(c.UserContext(), knowledge.Query{
		Text:      query,
		N:         c.QueryInt("n", defaultResults),
		Subreddit: tools.NormalizeSubreddit(c.Query("subreddit")),
		DocType:   docType,
	})
	if err != nil {
		return err
	}

	response := make([]SearchResult, 0, len(results))
	for _, r := range results {
		item := SearchResult{Document: r.Document, Metadata: r.Metadata, Distance: r.Distance}
		if r.Metadata.Permalink != "" {
			item.ThreadURL = "https://www.reddit.com" + r.Metadata.Permalink
		}
		response = append(response, item)
	}

	return c.JSON(response)
}

func (s *Service) parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.valid.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
	}

	slog.Error("HTTP request failed", "path", c.Path(), "error", err)

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: engine.ApologyText})
}
