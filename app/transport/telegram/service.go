package telegram

import (
	"context"
	"fmt"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/queue"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	startText = "Hey! I'm Forager, an AI agent that can help you explore Reddit content.\n\n" +
		"Here's what I can do:\n" +
		"- Ask me about topics from seeded subreddits\n" +
		"- /seed <subreddit> [limit] - Ingest threads from a subreddit\n" +
		"- /clear - Clear our conversation history\n" +
		"- /status - Check how many documents are in the knowledge base\n\n" +
		"Try asking me something, or seed a subreddit first!"
	clearedText   = "Conversation history cleared."
	seedUsageText = "Usage: /seed <subreddit> [limit]\nExample: /seed python 5"
	badLimitText  = "Limit must be a number."
	emptyText     = "I don't have a response for that."
	busyText      = "I'm handling too many messages right now. Please try again in a moment."
	statusError   = "Sorry, I couldn't read the knowledge base right now."

	defaultSeedLimit = 5
	pollTimeout      = 60
)

// Sender is the part of the bot API the adapter writes to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Agent interface {
	ClearHistory(conversationID string)
	DocumentCount(ctx context.Context) (int, error)
}

var _ Agent = (*agent.Service)(nil)

type Service struct {
	bot      *tgbotapi.BotAPI
	sender   Sender
	agent    Agent
	queueSvc *queue.Service
	limit    int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, oops.In("telegram").Errorf("failed to create bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	svc := NewService(bot, do.MustInvoke[*agent.Service](di), do.MustInvoke[*queue.Service](di), cfg.Telegram.MessageLimit)
	svc.bot = bot

	return svc, nil
}

func NewService(sender Sender, agentSvc Agent, queueSvc *queue.Service, limit int) *Service {
	return &Service{
		sender:   sender,
		agent:    agentSvc,
		queueSvc: queueSvc,
		limit:    limit,
	}
}

// Run long-polls for updates until ctx is done.
func (s *Service) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := s.bot.GetUpdatesChan(u)
	defer s.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

func (s *Service) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	chatID := msg.Chat.ID
	conversationID := fmt.Sprintf("telegram:%d", chatID)
	identity := conversationID
	if msg.From != nil {
		identity = fmt.Sprintf("telegram:%d", msg.From.ID)
	}

	if !msg.IsCommand() {
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		s.enqueue(chatID, conversationID, identity, msg.Text)
		return
	}

	switch msg.Command() {
	case "start", "help":
		s.send(chatID, startText)
	case "clear":
		s.agent.ClearHistory(conversationID)
		s.send(chatID, clearedText)
	case "status":
		count, err := s.agent.DocumentCount(ctx)
		if err != nil {
			slog.Error("Failed to count documents", "error", err)
			s.send(chatID, statusError)
			return
		}
		s.send(chatID, fmt.Sprintf("Knowledge base contains %d document(s).", count))
	case "seed":
		s.seed(chatID, conversationID, identity, msg.CommandArguments())
	default:
		s.enqueue(chatID, conversationID, identity, msg.Text)
	}
}

func (s *Service) seed(chatID int64, conversationID, identity, arguments string) {
	fields := strings.Fields(arguments)
	if len(fields) == 0 {
		s.send(chatID, seedUsageText)
		return
	}

	subreddit := fields[0]
	limit := defaultSeedLimit
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			s.send(chatID, badLimitText)
			return
		}
		limit = n
	}

	s.send(chatID, fmt.Sprintf("Seeding r/%s (%d threads). This may take a minute while threads are extracted and summarised...",
		subreddit, limit))

	s.enqueue(chatID, conversationID, identity, fmt.Sprintf("Please seed the subreddit '%s' with %d threads.", subreddit, limit))
}

func (s *Service) enqueue(chatID int64, conversationID, identity, text string) {
	if _, err := s.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("Failed to send typing action", "error", err)
	}

	ok := s.queueSvc.Add(queue.Message{
		ConversationID: conversationID,
		Identity:       identity,
		Text:           text,
		Reply: func(reply string) {
			if strings.TrimSpace(reply) == "" {
				reply = emptyText
			}
			s.send(chatID, reply)
		},
	})
	if !ok {
		s.send(chatID, busyText)
	}
}

func (s *Service) send(chatID int64, text string) {
	for _, part := range Split(text, s.limit) {
		if _, err := s.sender.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			slog.Error("Failed to send telegram message", "chat", chatID, "error", err)
			return
		}
	}
}

// Split breaks text into parts of at most limit characters, preferring line
// boundaries. A single line longer than limit is cut.
func Split(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current []rune
	)

	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)

		if len(current) > 0 && len(current)+1+len(runes) > limit {
			flush()
		}

		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}

		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	flush()

	return parts
}
