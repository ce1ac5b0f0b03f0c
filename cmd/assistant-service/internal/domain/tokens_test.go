package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTextTokens(t *testing.T) {
	assert.Zero(t, EstimateTextTokens(""))
	// ASCII约4字符1个Token
	assert.Equal(t, 1, EstimateTextTokens("abcd"))
	assert.Equal(t, 2, EstimateTextTokens("abcde"))
	// 非ASCII保守按1字符1个Token
	assert.Equal(t, 1, EstimateTextTokens("你"))
	assert.Equal(t, 2, EstimateTextTokens("你好"))
}

func TestEstimateImageTokens(t *testing.T) {
	assert.Zero(t, EstimateImageTokens(0, 512))
	assert.Zero(t, EstimateImageTokens(512, -1))
	assert.Equal(t, 85+170, EstimateImageTokens(512, 512))
	assert.Equal(t, 85+170, EstimateImageTokens(100, 100))
	assert.Equal(t, 85+170*4, EstimateImageTokens(1024, 1024))
	assert.Equal(t, 85+170*2, EstimateImageTokens(513, 512))
}

func TestCountMessageTokens(t *testing.T) {
	msg := NewUserMessage("hello world")
	base := CountMessageTokens(msg)
	assert.Positive(t, base)

	// 函数调用增加成本
	withCall := NewAssistantMessage("hello world", &FunctionCall{Name: "get_weather", Arguments: `{"city":"Berlin"}`})
	assert.Greater(t, CountMessageTokens(withCall), base)

	// 图片片段按入库时计算的成本计入
	withImage := NewUserMessage("hello world")
	withImage.Parts = []ContentPart{{Type: PartTypeImageURL, URL: "https://example.com/a.png", Tokens: 255}}
	assert.Equal(t, base+255, CountMessageTokens(withImage))
}

func TestCountPromptTokens_Deterministic(t *testing.T) {
	messages := []*Message{
		NewUserMessage("first question"),
		NewAssistantMessage("first answer", nil),
		NewUserMessage("second question"),
	}
	first := CountPromptTokens(messages)
	assert.Equal(t, first, CountPromptTokens(messages))
	assert.Greater(t, first, CountPromptTokens(messages[:1]))
}
