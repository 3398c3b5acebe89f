package conversation

import (
	"github.com/tmc/langchaingo/llms"
)

// History is the ordered turn log of one conversation. Turn 0 is always the
// system instruction.
type History struct {
	turns []llms.MessageContent
}

func NewHistory(system string) *History {
	return &History{
		turns: []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)},
	}
}

func (h *History) Append(turns ...llms.MessageContent) {
	h.turns = append(h.turns, turns...)
}

// Turns returns a copy of the log, safe to extend without touching h.
func (h *History) Turns() []llms.MessageContent {
	return append([]llms.MessageContent(nil), h.turns...)
}

func (h *History) Len() int {
	return len(h.turns)
}

// Trim bounds the log to max turns. Must only run between cycles.
func (h *History) Trim(max int) {
	h.turns = Trim(h.turns, max)
}

// Trim keeps the system turn plus the newest max-1 turns. Tool responses
// whose request was cut away are dropped too, since a tool turn is only
// valid after the assistant turn that asked for it.
func Trim(turns []llms.MessageContent, max int) []llms.MessageContent {
	if len(turns) <= max || max < 1 {
		return turns
	}

	result := make([]llms.MessageContent, 0, max)
	result = append(result, turns[0])

	tail := turns[len(turns)-(max-1):]
	for len(tail) > 0 && tail[0].Role == llms.ChatMessageTypeTool {
		tail = tail[1:]
	}

	return append(result, tail...)
}
