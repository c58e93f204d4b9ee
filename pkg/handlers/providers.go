package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/factory"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	remoteModelCacheTTL = 5 * time.Minute
	keyTestTimeout      = 15 * time.Second
)

// ProvidersHandler handles provider administration endpoints
type ProvidersHandler struct {
	db        *gorm.DB
	newClient func(kind llm.ProviderKind, config llm.ClientConfig) llm.Client
	// remoteModels caches upstream model listings per provider so repeated
	// admin page loads do not hammer the vendor APIs.
	remoteModels *gocache.Cache
}

// NewProvidersHandler creates a new providers handler
func NewProvidersHandler(db *gorm.DB) *ProvidersHandler {
	return &ProvidersHandler{
		db:           db,
		newClient:    factory.NewClient,
		remoteModels: gocache.New(remoteModelCacheTTL, 10*time.Minute),
	}
}

// Routes returns the provider administration routes
func (h *ProvidersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListProviders)
	r.Post("/", h.CreateProvider)
	r.Get("/{id}", h.GetProvider)
	r.Patch("/{id}", h.UpdateProvider)
	r.Delete("/{id}", h.DeleteProvider)
	r.Post("/{id}/test-key", h.TestKey)
	r.Get("/{id}/models", h.ListRemoteModels)

	return r
}

// ProviderRequest carries create and update payloads for providers
type ProviderRequest struct {
	Name    *string              `json:"name"`
	Type    *models.ProviderType `json:"type"`
	BaseURL *string              `json:"baseUrl"`
	APIKey  *string              `json:"apiKey"`
}

// ProviderResponse is the provider shape returned to admins, with the key
// masked.
type ProviderResponse struct {
	ID        uuid.UUID           `json:"id"`
	Name      string              `json:"name"`
	Type      models.ProviderType `json:"type"`
	BaseURL   string              `json:"baseUrl"`
	APIKey    string              `json:"apiKey"`
	IsCustom  bool                `json:"isCustom"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func providerResponse(p *models.Provider) ProviderResponse {
	masked := "••••••••"
	if len(p.APIKey) > 4 {
		masked += p.APIKey[len(p.APIKey)-4:]
	}
	if p.APIKey == "" {
		masked = ""
	}
	return ProviderResponse{
		ID:        p.ID,
		Name:      p.Name,
		Type:      p.Type,
		BaseURL:   p.BaseURL,
		APIKey:    masked,
		IsCustom:  p.IsCustom,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ListProviders returns all providers
func (h *ProvidersHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	var providers []models.Provider
	if err := h.db.Order("created_at ASC").Find(&providers).Error; err != nil {
		logging.LogErrorf(err, "Failed to list providers")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list providers"})
		return
	}

	responses := make([]ProviderResponse, len(providers))
	for i := range providers {
		responses[i] = providerResponse(&providers[i])
	}

	render.JSON(w, r, responses)
}

// GetProvider returns one provider
func (h *ProvidersHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	render.JSON(w, r, providerResponse(&provider))
}

// CreateProvider creates a new provider
func (h *ProvidersHandler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Name == nil || *req.Name == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Name is required"})
		return
	}

	provider := models.Provider{
		Name: *req.Name,
		Type: models.ProviderTypeCustom,
	}
	if req.Type != nil {
		provider.Type = *req.Type
	}
	provider.IsCustom = provider.Type == models.ProviderTypeCustom
	if req.BaseURL != nil {
		provider.BaseURL = *req.BaseURL
	}
	if req.APIKey != nil {
		provider.APIKey = *req.APIKey
	}

	if err := h.db.Create(&provider).Error; err != nil {
		if models.IsUniqueViolation(err) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Provider name already exists"})
			return
		}
		logging.LogErrorf(err, "Failed to create provider")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create provider"})
		return
	}

	logging.LogDebugf("Created provider: %s (%s)", provider.Name, provider.ID)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, providerResponse(&provider))
}

// UpdateProvider updates a provider. An absent or empty apiKey keeps the
// stored key.
func (h *ProvidersHandler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	if req.Name != nil && *req.Name != "" {
		provider.Name = *req.Name
	}
	if req.Type != nil {
		provider.Type = *req.Type
		provider.IsCustom = provider.Type == models.ProviderTypeCustom
	}
	if req.BaseURL != nil {
		provider.BaseURL = *req.BaseURL
	}
	if req.APIKey != nil && *req.APIKey != "" {
		provider.APIKey = *req.APIKey
	}

	if err := h.db.Save(&provider).Error; err != nil {
		if models.IsUniqueViolation(err) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Provider name already exists"})
			return
		}
		logging.LogErrorf(err, "Failed to update provider")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update provider"})
		return
	}

	// Credentials may have changed, cached listings are stale.
	h.remoteModels.Delete(provider.ID.String())

	logging.LogDebugf("Updated provider: %s", provider.ID)

	render.JSON(w, r, providerResponse(&provider))
}

// DeleteProvider removes a provider without model configurations attached
func (h *ProvidersHandler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	var attached int64
	if err := h.db.Model(&models.ModelConfig{}).
		Where("provider_id = ?", provider.ID).
		Count(&attached).Error; err != nil {
		logging.LogErrorf(err, "Failed to count attached model configurations")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to delete provider"})
		return
	}
	if attached > 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Provider has model configurations attached"})
		return
	}

	if err := h.db.Delete(&provider).Error; err != nil {
		logging.LogErrorf(err, "Failed to delete provider")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to delete provider"})
		return
	}

	h.remoteModels.Delete(provider.ID.String())

	logging.LogDebugf("Deleted provider: %s", provider.ID)

	render.NoContent(w, r)
}

// TestKey checks whether the provider's credentials are accepted upstream.
// A key passed in the body is tested instead of the stored one, so admins can
// verify before saving.
func (h *ProvidersHandler) TestKey(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	var req struct {
		APIKey string `json:"apiKey"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
	}
	apiKey := provider.APIKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}

	client := h.newClient(llm.KindFromString(string(provider.Type)), llm.ClientConfig{
		APIKey:  apiKey,
		BaseURL: provider.BaseURL,
		Timeout: keyTestTimeout,
	})

	valid := client.TestKey(r.Context())

	logging.LogDebugf("Key test for provider %s: valid=%t", provider.ID, valid)

	render.JSON(w, r, map[string]bool{"valid": valid})
}

// ListRemoteModels returns the models the provider offers upstream, cached
// for a few minutes.
func (h *ProvidersHandler) ListRemoteModels(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.loadProvider(w, r)
	if !ok {
		return
	}

	if cached, found := h.remoteModels.Get(provider.ID.String()); found {
		render.JSON(w, r, cached)
		return
	}

	client := h.newClient(llm.KindFromString(string(provider.Type)), llm.ClientConfig{
		APIKey:  provider.APIKey,
		BaseURL: provider.BaseURL,
		Timeout: keyTestTimeout,
	})

	remoteModels, err := client.ListModels(r.Context())
	if err != nil {
		logging.LogErrorf(err, "Failed to list remote models for provider %s", provider.ID)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, map[string]string{"error": "Failed to list models from provider"})
		return
	}

	h.remoteModels.Set(provider.ID.String(), remoteModels, gocache.DefaultExpiration)

	render.JSON(w, r, remoteModels)
}

func (h *ProvidersHandler) loadProvider(w http.ResponseWriter, r *http.Request) (models.Provider, bool) {
	var provider models.Provider

	providerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid provider ID"})
		return provider, false
	}

	if err := h.db.First(&provider, providerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Provider not found"})
		} else {
			logging.LogErrorf(err, "Failed to get provider")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get provider"})
		}
		return provider, false
	}

	return provider, true
}
