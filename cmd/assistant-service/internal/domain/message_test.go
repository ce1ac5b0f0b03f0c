package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContent_ReturnsIndependentCopy(t *testing.T) {
	original := NewAssistantMessage("full answer", nil)
	part := original.WithContent("partial")

	assert.Equal(t, "partial", part.Content)
	assert.Equal(t, "full answer", original.Content)
	assert.Equal(t, original.ID, part.ID)
	assert.Equal(t, original.Role, part.Role)
}

func TestHasFunctionCall(t *testing.T) {
	assert.False(t, NewAssistantMessage("plain", nil).HasFunctionCall())
	assert.False(t, NewAssistantMessage("", &FunctionCall{}).HasFunctionCall())
	assert.True(t, NewAssistantMessage("", &FunctionCall{Name: "get_weather"}).HasFunctionCall())
}

func TestDelivered(t *testing.T) {
	msg := NewUserMessage("hi")
	assert.False(t, msg.Delivered())
	msg.TransportMessageID = 42
	assert.True(t, msg.Delivered())
}
