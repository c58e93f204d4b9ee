package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ModelConfigsHandler handles model configuration endpoints
type ModelConfigsHandler struct {
	db *gorm.DB
}

// NewModelConfigsHandler creates a new model configs handler
func NewModelConfigsHandler(db *gorm.DB) *ModelConfigsHandler {
	return &ModelConfigsHandler{
		db: db,
	}
}

// Routes returns the user-facing model routes
func (h *ModelConfigsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListEnabledModels)

	return r
}

// AdminRoutes returns the admin model configuration routes
func (h *ModelConfigsHandler) AdminRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListModelConfigs)
	r.Post("/", h.CreateModelConfig)
	r.Get("/{id}", h.GetModelConfig)
	r.Patch("/{id}", h.UpdateModelConfig)
	r.Delete("/{id}", h.DeleteModelConfig)

	return r
}

// ModelConfigRequest carries create and update payloads for model
// configurations. Pointer fields distinguish "absent" from zero values on
// updates.
type ModelConfigRequest struct {
	Name       *string    `json:"name"`
	BaseURL    *string    `json:"baseUrl"`
	APIKey     *string    `json:"apiKey"`
	Model      *string    `json:"model"`
	Enabled    *bool      `json:"enabled"`
	ProviderID *uuid.UUID `json:"providerId"`
}

// ListEnabledModels returns the models a chat user may select
func (h *ModelConfigsHandler) ListEnabledModels(w http.ResponseWriter, r *http.Request) {
	var configs []models.ModelConfig
	err := h.db.Preload("Provider").
		Where("enabled = ?", true).
		Order("created_at ASC, id ASC").
		Find(&configs).Error
	if err != nil {
		logging.LogErrorf(err, "Failed to list models")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list models"})
		return
	}

	masked := make([]models.MaskedModelConfig, len(configs))
	for i, c := range configs {
		masked[i] = c.ToMasked()
	}

	render.JSON(w, r, masked)
}

// ListModelConfigs returns all model configurations, enabled or not
func (h *ModelConfigsHandler) ListModelConfigs(w http.ResponseWriter, r *http.Request) {
	var configs []models.ModelConfig
	err := h.db.Preload("Provider").
		Order("created_at ASC, id ASC").
		Find(&configs).Error
	if err != nil {
		logging.LogErrorf(err, "Failed to list model configurations")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list model configurations"})
		return
	}

	masked := make([]models.MaskedModelConfig, len(configs))
	for i, c := range configs {
		masked[i] = c.ToMasked()
	}

	render.JSON(w, r, masked)
}

// GetModelConfig returns one model configuration
func (h *ModelConfigsHandler) GetModelConfig(w http.ResponseWriter, r *http.Request) {
	modelConfig, ok := h.loadModelConfig(w, r)
	if !ok {
		return
	}

	render.JSON(w, r, modelConfig.ToMasked())
}

// CreateModelConfig creates a new model configuration
func (h *ModelConfigsHandler) CreateModelConfig(w http.ResponseWriter, r *http.Request) {
	var req ModelConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Name == nil || *req.Name == "" ||
		req.BaseURL == nil || *req.BaseURL == "" ||
		req.Model == nil || *req.Model == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Name, baseUrl, and model are required"})
		return
	}

	modelConfig := models.ModelConfig{
		Name:       *req.Name,
		BaseURL:    *req.BaseURL,
		Model:      *req.Model,
		ProviderID: req.ProviderID,
	}
	if req.APIKey != nil {
		modelConfig.APIKey = *req.APIKey
	}
	if req.Enabled != nil {
		modelConfig.Enabled = *req.Enabled
	}

	if req.ProviderID != nil {
		var provider models.Provider
		if err := h.db.First(&provider, *req.ProviderID).Error; err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Provider not found"})
			return
		}
		// Provider credentials are the default for its models.
		if modelConfig.APIKey == "" {
			modelConfig.APIKey = provider.APIKey
		}
		if modelConfig.BaseURL == "" {
			modelConfig.BaseURL = provider.BaseURL
		}
	}

	if err := h.db.Create(&modelConfig).Error; err != nil {
		logging.LogErrorf(err, "Failed to create model configuration")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create model configuration"})
		return
	}

	h.db.Preload("Provider").First(&modelConfig, modelConfig.ID)

	logging.LogDebugf("Created model configuration: %s (%s)", modelConfig.Name, modelConfig.ID)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, modelConfig.ToMasked())
}

// UpdateModelConfig updates a model configuration. An absent or empty apiKey
// keeps the stored key.
func (h *ModelConfigsHandler) UpdateModelConfig(w http.ResponseWriter, r *http.Request) {
	var req ModelConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	modelConfig, ok := h.loadModelConfig(w, r)
	if !ok {
		return
	}

	if req.Name != nil && *req.Name != "" {
		modelConfig.Name = *req.Name
	}
	if req.BaseURL != nil && *req.BaseURL != "" {
		modelConfig.BaseURL = *req.BaseURL
	}
	if req.Model != nil && *req.Model != "" {
		modelConfig.Model = *req.Model
	}
	if req.APIKey != nil && *req.APIKey != "" {
		modelConfig.APIKey = *req.APIKey
	}
	if req.Enabled != nil {
		modelConfig.Enabled = *req.Enabled
	}
	if req.ProviderID != nil {
		var provider models.Provider
		if err := h.db.First(&provider, *req.ProviderID).Error; err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Provider not found"})
			return
		}
		modelConfig.ProviderID = req.ProviderID
	}

	if err := h.db.Save(&modelConfig).Error; err != nil {
		logging.LogErrorf(err, "Failed to update model configuration")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update model configuration"})
		return
	}

	h.db.Preload("Provider").First(&modelConfig, modelConfig.ID)

	logging.LogDebugf("Updated model configuration: %s", modelConfig.ID)

	render.JSON(w, r, modelConfig.ToMasked())
}

// DeleteModelConfig removes a model configuration
func (h *ModelConfigsHandler) DeleteModelConfig(w http.ResponseWriter, r *http.Request) {
	configID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid model configuration ID"})
		return
	}

	result := h.db.Delete(&models.ModelConfig{}, configID)
	if result.Error != nil {
		logging.LogErrorf(result.Error, "Failed to delete model configuration")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to delete model configuration"})
		return
	}
	if result.RowsAffected == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Model configuration not found"})
		return
	}

	logging.LogDebugf("Deleted model configuration: %s", configID)

	render.NoContent(w, r)
}

func (h *ModelConfigsHandler) loadModelConfig(w http.ResponseWriter, r *http.Request) (models.ModelConfig, bool) {
	var modelConfig models.ModelConfig

	configID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid model configuration ID"})
		return modelConfig, false
	}

	if err := h.db.Preload("Provider").First(&modelConfig, configID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Model configuration not found"})
		} else {
			logging.LogErrorf(err, "Failed to get model configuration")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get model configuration"})
		}
		return modelConfig, false
	}

	return modelConfig, true
}
