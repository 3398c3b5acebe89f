package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDropsWhenFull(t *testing.T) {
	s := NewService(2)

	assert.True(t, s.Add(Message{ConversationID: "a", Text: "1"}))
	assert.True(t, s.Add(Message{ConversationID: "a", Text: "2"}))
	assert.False(t, s.Add(Message{ConversationID: "a", Text: "3"}))
	assert.Equal(t, 2, s.Len())

	msg := <-s.Channel()
	assert.Equal(t, "1", msg.Text)
}

func TestAddAfterShutdown(t *testing.T) {
	s := NewService(1)
	require.NoError(t, s.Shutdown())

	assert.False(t, s.Add(Message{Text: "late"}))

	_, ok := <-s.Channel()
	assert.False(t, ok)
}
