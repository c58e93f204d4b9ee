// Package factory resolves a provider kind into a concrete LLM client. It is
// the single place where provider families are branched on.
package factory

import (
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/anthropic"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/gemini"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/openai"
)

// NewClient creates the client variant for the given provider kind. Custom
// providers speak the OpenAI-compatible wire shape.
func NewClient(kind llm.ProviderKind, config llm.ClientConfig) llm.Client {
	switch kind {
	case llm.KindGemini:
		return gemini.NewClient(config)
	case llm.KindAnthropic:
		return anthropic.NewClient(config)
	default:
		return openai.NewClient(config)
	}
}
