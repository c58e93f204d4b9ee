package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-chat-gateway/internal/testutils"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, userToken := testutils.CreateTestUser(t, models.UserRoleUser)
	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)

	tests := []struct {
		name           string
		token          string
		expectedStatus int
	}{
		{"plain user is rejected", userToken, http.StatusForbidden},
		{"admin is allowed", adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/admin/models", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			srv.Mux().ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestModelConfigAdminLifecycle(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)

	do := func(method, url string, body interface{}) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, url, testutils.GetRequestPayload(body))
		} else {
			req = httptest.NewRequest(method, url, nil)
		}
		req.Header.Set("Authorization", "Bearer "+adminToken)
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)
		return w
	}

	// Create
	w := do("POST", "/api/v1/admin/models", map[string]interface{}{
		"name":    "GPT-4o",
		"baseUrl": "https://api.openai.com/v1",
		"apiKey":  "sk-secret-key-9876",
		"model":   "gpt-4o",
		"enabled": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.MaskedModelConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	// The key never leaves the service unmasked.
	assert.Equal(t, "••••••••9876", created.APIKey)
	assert.NotContains(t, w.Body.String(), "sk-secret-key-9876")

	// Update without apiKey keeps the stored key
	w = do("PATCH", "/api/v1/admin/models/"+created.ID.String(), map[string]interface{}{
		"name": "GPT-4o renamed",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.MaskedModelConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "GPT-4o renamed", updated.Name)
	assert.Equal(t, "••••••••9876", updated.APIKey)

	var stored models.ModelConfig
	require.NoError(t, db.Get().First(&stored, created.ID).Error)
	assert.Equal(t, "sk-secret-key-9876", stored.APIKey)

	// Disable
	w = do("PATCH", "/api/v1/admin/models/"+created.ID.String(), map[string]interface{}{
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Delete
	w = do("DELETE", "/api/v1/admin/models/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do("GET", "/api/v1/admin/models/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModelConfigCreate_Validation(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)

	req := httptest.NewRequest("POST", "/api/v1/admin/models",
		testutils.GetRequestPayload(map[string]interface{}{"name": "incomplete"}))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEnabledModels_FiltersDisabled(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, token := testutils.CreateTestUser(t, models.UserRoleUser)
	provider := testutils.CreateTestProvider(t, models.ProviderTypeOpenAI, "https://api.openai.com")
	enabled := testutils.CreateTestModelConfig(t, "https://api.openai.com", true, &provider.ID)
	testutils.CreateTestModelConfig(t, "https://api.openai.com", false, nil)

	req := httptest.NewRequest("GET", "/api/v1/models", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []models.MaskedModelConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, enabled.ID, listed[0].ID)
	require.NotNil(t, listed[0].Provider)
	assert.Equal(t, provider.ID, listed[0].Provider.ID)
	assert.Equal(t, "••••••••1234", listed[0].APIKey)
}
