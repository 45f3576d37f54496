package modelinvoke

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestNewOpenAIEmbedder_StoresModel(t *testing.T) {
	e := NewOpenAIEmbedder("key", openai.SmallEmbedding3)
	assert.Equal(t, openai.SmallEmbedding3, e.model)
	assert.NotNil(t, e.client)
}
