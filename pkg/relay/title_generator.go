package relay

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/factory"
	"github.com/d4l-data4life/go-chat-gateway/pkg/metrics"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	titleMaxLength = 100

	titleSystemPrompt = `Generate a short, descriptive title for this conversation. ` +
		`Start with a single fitting emoji. ` +
		`Respond with JSON only, in the form {"title": "emoji title"}. ` +
		`Keep the title under 8 words and in the language of the conversation.`
)

// TitleGenerator derives a conversation title from its first exchange with a
// single non-streaming completion. It runs best-effort in the background:
// every failure is logged and swallowed, the conversation keeps its current
// title.
type TitleGenerator struct {
	conn      *gorm.DB
	newClient ClientFactory
	timeout   time.Duration
}

// NewTitleGenerator creates a title generator on the given database handle
func NewTitleGenerator(conn *gorm.DB, newClient ClientFactory, timeout time.Duration) *TitleGenerator {
	if newClient == nil {
		newClient = factory.NewClient
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &TitleGenerator{
		conn:      conn,
		newClient: newClient,
		timeout:   timeout,
	}
}

// Generate derives and stores a title for the conversation. Errors are
// logged, never returned; callers fire and forget.
func (g *TitleGenerator) Generate(ctx context.Context, conversationID uuid.UUID) {
	title, err := g.generate(ctx, conversationID)
	if err != nil {
		logging.LogErrorf(err, "Title generation failed for conversation %s", conversationID)
		metrics.TitleGenerations.WithLabelValues("failed").Inc()
		return
	}

	err = g.conn.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("title", title).Error
	if err != nil {
		logging.LogErrorf(err, "Failed to store title for conversation %s", conversationID)
		metrics.TitleGenerations.WithLabelValues("failed").Inc()
		return
	}

	logging.LogDebugf("Generated title for conversation %s: %s", conversationID, title)
	metrics.TitleGenerations.WithLabelValues("completed").Inc()
}

func (g *TitleGenerator) generate(ctx context.Context, conversationID uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var conversationMessages []models.Message
	err := g.conn.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(models.MessageOrder).
		Find(&conversationMessages).Error
	if err != nil {
		return "", errors.Wrap(err, "failed to load messages")
	}
	if len(conversationMessages) == 0 {
		return "", errors.New("conversation has no messages")
	}

	modelConfig, err := g.resolveModelConfig(ctx)
	if err != nil {
		return "", err
	}

	chatMessages := make([]llm.Message, 0, len(conversationMessages)+1)
	chatMessages = append(chatMessages, llm.Message{Role: llm.RoleSystem, Content: titleSystemPrompt})
	for _, m := range conversationMessages {
		chatMessages = append(chatMessages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	client := g.newClient(llm.KindFromString(providerType(modelConfig)), llm.ClientConfig{
		APIKey:  modelConfig.APIKey,
		BaseURL: modelConfig.BaseURL,
		Model:   modelConfig.Model,
		Timeout: g.timeout,
	})

	response, err := client.Chat(ctx, llm.ChatRequest{
		Model:    modelConfig.Model,
		Messages: chatMessages,
	})
	if err != nil {
		return "", errors.Wrap(err, "title completion failed")
	}

	return parseTitle(response.Message.Content)
}

func (g *TitleGenerator) resolveModelConfig(ctx context.Context) (*models.ModelConfig, error) {
	var modelConfig models.ModelConfig
	err := g.conn.WithContext(ctx).
		Preload("Provider").
		Where("enabled = ?", true).
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

// parseTitle extracts the title from the model's JSON reply, tolerating
// surrounding prose or code fences.
func parseTitle(content string) (string, error) {
	content = strings.TrimSpace(content)

	// Models occasionally wrap the JSON in markdown fences or prose.
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var parsed struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse title reply")
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return "", errors.New("title reply is empty")
	}
	// Truncate on a rune boundary, titles routinely start with an emoji.
	if runes := []rune(title); len(runes) > titleMaxLength {
		title = string(runes[:titleMaxLength])
	}
	return title, nil
}

func providerType(modelConfig *models.ModelConfig) string {
	if modelConfig.Provider != nil {
		return string(modelConfig.Provider.Type)
	}
	return "custom"
}
