package testutils

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/d4l-data4life/go-chat-gateway/pkg/auth"
	"github.com/d4l-data4life/go-chat-gateway/pkg/config"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/openai"
	"github.com/d4l-data4life/go-chat-gateway/pkg/metrics"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"
	"github.com/d4l-data4life/go-chat-gateway/pkg/relay"
	"github.com/d4l-data4life/go-chat-gateway/pkg/server"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// AddTestDataToDB seeds a local database with an admin account and one
// enabled model so the service is usable right after `make testdata`.
func AddTestDataToDB() {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		logging.LogErrorf(err, "failed hashing the seed password")
		return
	}

	username := "admin"
	email := "admin@example.com"
	hash := string(passwordHash)
	admin := models.User{
		Username:     &username,
		Email:        &email,
		PasswordHash: &hash,
		Role:         models.UserRoleAdmin,
	}
	if err := db.Get().FirstOrCreate(&admin, models.User{Username: &username}).Error; err != nil {
		logging.LogErrorf(err, "failed seeding the admin user")
	}

	provider := models.Provider{
		Name:    "Local Ollama",
		Type:    models.ProviderTypeCustom,
		BaseURL: "http://localhost:11434/v1",
	}
	if err := db.Get().FirstOrCreate(&provider, models.Provider{Name: provider.Name}).Error; err != nil {
		logging.LogErrorf(err, "failed seeding the default provider")
		return
	}

	modelConfig := models.ModelConfig{
		Name:       "Llama 3.1",
		BaseURL:    provider.BaseURL,
		Model:      "llama3.1",
		Enabled:    true,
		ProviderID: &provider.ID,
	}
	if err := db.Get().FirstOrCreate(&modelConfig, models.ModelConfig{Name: modelConfig.Name}).Error; err != nil {
		logging.LogErrorf(err, "failed seeding the default model")
	}
}

// GetRequestPayload converts a given object into a reader of that obect as json payload
func GetRequestPayload(payload interface{}) io.Reader {
	bytes, _ := json.Marshal(payload)
	return strings.NewReader(string(bytes))
}

// OpenAIClientFactory builds OpenAI-compatible clients regardless of the
// provider kind, so tests can point every provider at one mock upstream.
func OpenAIClientFactory(kind llm.ProviderKind, cfg llm.ClientConfig) llm.Client {
	return openai.NewClient(cfg)
}

// GetTestMockServer creates the mocked server for tests
func GetTestMockServer(t *testing.T) *server.Server {
	models.InitializeTestDB(t)
	corsOptions := config.CorsConfig([]string{"localhost"})
	srv := server.NewServer("TEST_SERVER", cors.New(corsOptions), 1, 10*time.Second)

	jwtSecret := []byte(viper.GetString("JWT_SECRET"))
	validator, err := auth.NewLocalJWTValidator(jwtSecret)
	require.NoError(t, err)

	engine := relay.NewEngine(db.Get(), relay.Options{NewClient: OpenAIClientFactory})

	server.SetupRoutes(srv.Mux(), db.Get(), engine, validator, jwtSecret)
	metrics.AddBuildInfoMetric()
	return srv
}

// CreateTestUser adds a user with the given role to the database and returns
// it together with a valid session token.
func CreateTestUser(t *testing.T, role models.UserRole) (models.User, string) {
	username := "user-" + uuid.NewString()[:8]
	email := username + "@example.com"
	passwordHash := "$2a$10$invalidhashforfixturesonly000000000000000000000000000"

	user := models.User{
		Username:     &username,
		Email:        &email,
		PasswordHash: &passwordHash,
		Role:         role,
	}
	require.NoError(t, db.Get().Create(&user).Error)

	token, err := auth.IssueToken(user.ID, []byte(viper.GetString("JWT_SECRET")))
	require.NoError(t, err)

	return user, token
}

// CreateTestConversation adds a conversation owned by the given user
func CreateTestConversation(t *testing.T, userID uuid.UUID) models.Conversation {
	conversation := models.Conversation{UserID: userID}
	require.NoError(t, db.Get().Create(&conversation).Error)
	return conversation
}

// CreateTestMessage adds one message to a conversation
func CreateTestMessage(t *testing.T, conversationID uuid.UUID, role models.MessageRole, content string) models.Message {
	message := models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	require.NoError(t, db.Get().Create(&message).Error)
	return message
}

// CreateTestProvider adds a provider
func CreateTestProvider(t *testing.T, providerType models.ProviderType, baseURL string) models.Provider {
	provider := models.Provider{
		Name:     "provider-" + uuid.NewString()[:8],
		Type:     providerType,
		BaseURL:  baseURL,
		APIKey:   "provider-secret-key",
		IsCustom: providerType == models.ProviderTypeCustom,
	}
	require.NoError(t, db.Get().Create(&provider).Error)
	return provider
}

// CreateTestModelConfig adds a model configuration
func CreateTestModelConfig(t *testing.T, baseURL string, enabled bool, providerID *uuid.UUID) models.ModelConfig {
	modelConfig := models.ModelConfig{
		Name:       "model-" + uuid.NewString()[:8],
		BaseURL:    baseURL,
		APIKey:     "model-secret-key-1234",
		Model:      "test-model",
		Enabled:    enabled,
		ProviderID: providerID,
	}
	require.NoError(t, db.Get().Create(&modelConfig).Error)
	return modelConfig
}

func MustJSON[T any](object T) datatypes.JSON {
	bytes, err := json.Marshal(object)
	if err != nil {
		logging.LogErrorfCtx(context.Background(), err, "failed marshalling to JSON")
		return nil
	}
	return bytes
}

func Pointerfy[T any](thing T) *T {
	return &thing
}
