// Package relay implements the streamed completion relay: it resolves the
// model configuration, assembles the bounded conversation context, persists
// the exchange and pumps the upstream token stream to the caller.
package relay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/factory"
	"github.com/d4l-data4life/go-chat-gateway/pkg/metrics"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ClientFactory resolves a provider kind and config into an LLM client.
// Tests substitute it to point at a mock upstream.
type ClientFactory func(kind llm.ProviderKind, config llm.ClientConfig) llm.Client

// Options tune the engine. Zero values fall back to the documented defaults.
type Options struct {
	// HistoryLimit bounds how many prior messages are sent upstream
	HistoryLimit int
	// ConnectRetries bounds retries of the upstream connection establishment
	ConnectRetries int
	// UpstreamTimeout bounds one full upstream streaming request
	UpstreamTimeout time.Duration
	// NewClient overrides the provider client factory
	NewClient ClientFactory
}

// Engine relays chat completions between the persisted conversation and the
// configured provider.
type Engine struct {
	conn            *gorm.DB
	historyLimit    int
	connectRetries  int
	upstreamTimeout time.Duration
	newClient       ClientFactory
	titles          *TitleGenerator
}

// Request describes one relayed user turn
type Request struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Content        string
	// SystemPrompt is prepended to the upstream context when set. It is not
	// persisted as part of the conversation.
	SystemPrompt string
	// ModelConfigID pins a specific model configuration. When nil the first
	// enabled configuration is used.
	ModelConfigID *uuid.UUID
}

// Event is one unit of the relayed stream as handed to the transport layer
type Event struct {
	// Content is a raw token fragment, exactly as decoded from upstream
	Content string
	// Done marks the natural end of the stream; the assistant message has
	// been persisted by the time it is delivered
	Done bool
	// Err marks an aborted stream; any partial content must be discarded
	Err error
}

// NewEngine creates a relay engine on the given database handle
func NewEngine(conn *gorm.DB, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = 3
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 5 * time.Minute
	}
	if opts.NewClient == nil {
		opts.NewClient = factory.NewClient
	}

	engine := &Engine{
		conn:            conn,
		historyLimit:    opts.HistoryLimit,
		connectRetries:  opts.ConnectRetries,
		upstreamTimeout: opts.UpstreamTimeout,
		newClient:       opts.NewClient,
	}
	engine.titles = NewTitleGenerator(conn, opts.NewClient, opts.UpstreamTimeout)

	metrics.RegisterRelayMetrics()

	return engine
}

// Titles exposes the engine's title generator for explicit regeneration
func (e *Engine) Titles() *TitleGenerator {
	return e.titles
}

// Relay performs one user turn. The setup phase is synchronous: once Relay
// returns without error the user message is durably persisted and the
// upstream stream is established. Events then arrive on the returned channel
// until a Done or Err event, after which it is closed.
func (e *Engine) Relay(ctx context.Context, request Request) (<-chan Event, error) {
	var conversation models.Conversation
	err := e.conn.WithContext(ctx).
		Where("id = ? AND user_id = ?", request.ConversationID, request.UserID).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "failed to load conversation")
	}

	modelConfig, err := e.resolveModelConfig(ctx, request.ModelConfigID)
	if err != nil {
		return nil, err
	}

	history, err := e.loadHistory(ctx, request.ConversationID)
	if err != nil {
		return nil, err
	}

	// The user message is durable before any upstream call is made.
	userMessage := models.Message{
		ConversationID: request.ConversationID,
		Role:           models.MessageRoleUser,
		Content:        request.Content,
	}
	if err := e.conn.WithContext(ctx).Create(&userMessage).Error; err != nil {
		return nil, errors.Wrap(err, "failed to persist user message")
	}

	chatMessages := make([]llm.Message, 0, len(history)+2)
	if request.SystemPrompt != "" {
		chatMessages = append(chatMessages, llm.Message{Role: llm.RoleSystem, Content: request.SystemPrompt})
	}
	for _, m := range history {
		chatMessages = append(chatMessages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	chatMessages = append(chatMessages, llm.Message{Role: llm.RoleUser, Content: request.Content})

	client := e.newClient(e.clientKind(modelConfig), llm.ClientConfig{
		APIKey:  modelConfig.APIKey,
		BaseURL: modelConfig.BaseURL,
		Model:   modelConfig.Model,
		Timeout: e.upstreamTimeout,
	})

	chunks, err := e.establishStream(ctx, client, llm.ChatRequest{
		Model:    modelConfig.Model,
		Messages: chatMessages,
	})
	if err != nil {
		metrics.RelayStreams.WithLabelValues("upstream_error").Inc()
		return nil, err
	}

	events := make(chan Event, 10)
	go e.pumpStream(ctx, request.ConversationID, modelConfig, chunks, events)

	return events, nil
}

// resolveModelConfig picks the pinned configuration or the first enabled one.
// Creation order breaks ties so the choice is deterministic.
func (e *Engine) resolveModelConfig(ctx context.Context, id *uuid.UUID) (*models.ModelConfig, error) {
	var modelConfig models.ModelConfig

	query := e.conn.WithContext(ctx).Preload("Provider")
	if id != nil {
		err := query.Where("id = ?", *id).First(&modelConfig).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoEnabledModel
			}
			return nil, errors.Wrap(err, "failed to load model configuration")
		}
		if !modelConfig.Enabled {
			return nil, ErrModelDisabled
		}
		return &modelConfig, nil
	}

	err := query.Where("enabled = ?", true).
		Order("created_at ASC, id ASC").
		First(&modelConfig).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEnabledModel
		}
		return nil, errors.Wrap(err, "failed to load model configuration")
	}
	return &modelConfig, nil
}

// loadHistory returns the most recent messages of the conversation in
// chronological order, bounded by the history limit.
func (e *Engine) loadHistory(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	var recent []models.Message
	err := e.conn.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, seq DESC").
		Limit(e.historyLimit).
		Find(&recent).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load message history")
	}

	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// clientKind resolves the provider family of a model configuration. A
// configuration without provider speaks the OpenAI-compatible wire shape.
func (e *Engine) clientKind(modelConfig *models.ModelConfig) llm.ProviderKind {
	if modelConfig.Provider != nil {
		return llm.KindFromString(string(modelConfig.Provider.Type))
	}
	return llm.KindCustom
}

// establishStream opens the upstream stream with bounded exponential
// backoff. Only connection establishment is retried, never a started stream.
func (e *Engine) establishStream(ctx context.Context, client llm.Client, request llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt < e.connectRetries; attempt++ {
		if attempt > 0 {
			logging.LogDebugf("Retrying upstream connection (attempt %d/%d)", attempt+1, e.connectRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		chunks, err := client.ChatStream(ctx, request)
		if err == nil {
			return chunks, nil
		}
		lastErr = err

		// A definitive upstream answer (auth failure, bad request) will
		// not improve with retries.
		if ue, ok := llm.AsUpstreamError(err); ok && ue.StatusCode >= 400 && ue.StatusCode < 500 && ue.StatusCode != 429 {
			break
		}
	}

	return nil, errors.Wrap(ErrUpstreamUnavailable, lastErr.Error())
}

// pumpStream forwards upstream chunks as events, accumulating the assistant
// reply. On natural completion the reply is persisted in one write and the
// title generation is triggered when the exchange is the conversation's
// first. A failed stream discards the partial reply. Every send honors the
// caller's context: when the caller goes away mid-stream the pump stops
// instead of blocking on the abandoned channel.
func (e *Engine) pumpStream(ctx context.Context, conversationID uuid.UUID, modelConfig *models.ModelConfig, chunks <-chan llm.StreamChunk, events chan<- Event) {
	defer close(events)

	var reply strings.Builder
	started := time.Now()

	for chunk := range chunks {
		if chunk.Error != nil {
			logging.LogErrorf(chunk.Error, "Upstream stream failed, discarding partial reply (%d bytes)", reply.Len())
			metrics.RelayStreams.WithLabelValues("stream_error").Inc()
			select {
			case events <- Event{Err: chunk.Error}:
			case <-ctx.Done():
			}
			return
		}
		if chunk.Content != "" {
			reply.WriteString(chunk.Content)
			select {
			case events <- Event{Content: chunk.Content}:
			case <-ctx.Done():
				e.abandonStream(conversationID, chunks, reply.Len())
				return
			}
		}
		if chunk.Done {
			break
		}
	}

	e.finishStream(conversationID, modelConfig, reply.String(), time.Since(started))
	select {
	case events <- Event{Done: true}:
	case <-ctx.Done():
	}
}

// abandonStream discards the partial reply after the caller disconnected and
// drains the remaining chunks so the upstream reader can run down and close
// the response body.
func (e *Engine) abandonStream(conversationID uuid.UUID, chunks <-chan llm.StreamChunk, partialLen int) {
	logging.LogDebugf("Caller gone, discarding partial reply for conversation %s (%d bytes)", conversationID, partialLen)
	metrics.RelayStreams.WithLabelValues("canceled").Inc()
	go func() {
		for range chunks {
		}
	}()
}

// finishStream persists the assistant reply and triggers title generation.
// An empty reply leaves no assistant row behind.
func (e *Engine) finishStream(conversationID uuid.UUID, modelConfig *models.ModelConfig, reply string, elapsed time.Duration) {
	if strings.TrimSpace(reply) == "" {
		logging.LogDebugf("Suppressing empty assistant reply for conversation %s", conversationID)
		metrics.RelayStreams.WithLabelValues("empty").Inc()
		return
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"model":      modelConfig.Model,
		"durationMs": elapsed.Milliseconds(),
	})

	assistantMessage := models.Message{
		ConversationID: conversationID,
		Role:           models.MessageRoleAssistant,
		Content:        reply,
		Metadata:       datatypes.JSON(metadata),
	}
	if err := e.conn.Create(&assistantMessage).Error; err != nil {
		logging.LogErrorf(err, "Failed to persist assistant message for conversation %s", conversationID)
		metrics.RelayStreams.WithLabelValues("stream_error").Inc()
		return
	}

	metrics.RelayStreams.WithLabelValues("completed").Inc()

	var count int64
	if err := e.conn.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error; err != nil {
		logging.LogErrorf(err, "Failed to count messages for conversation %s", conversationID)
		return
	}

	// The first completed exchange names the conversation. Detached from
	// the request lifecycle so a slow title never delays the stream end.
	if count == 2 {
		go e.titles.Generate(context.Background(), conversationID)
	}
}
