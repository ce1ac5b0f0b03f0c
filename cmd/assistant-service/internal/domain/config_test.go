package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContextConfiguration_KnownModels(t *testing.T) {
	for _, model := range []string{"gpt-3.5-turbo", "gpt-3.5-turbo-16k", "gpt-4"} {
		conf, err := GetContextConfiguration(model)
		require.NoError(t, err, model)
		assert.Equal(t, model, conf.ModelName)
		assert.Positive(t, conf.ShortTermMemoryTokens)
		assert.Positive(t, conf.SummaryLength)
	}
}

func TestGetContextConfiguration_UnknownModelFails(t *testing.T) {
	_, err := GetContextConfiguration("gpt-99")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Contains(t, err.Error(), "gpt-99")
}

func TestDefaultProcessingConfig(t *testing.T) {
	config := DefaultProcessingConfig()
	assert.Positive(t, config.MessageExpirationWindow)
	assert.Positive(t, config.MaxFunctionCalls)
	assert.Positive(t, config.MinEditInterval)
	assert.Positive(t, config.MinStreamedChars)
}
