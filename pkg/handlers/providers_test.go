package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-chat-gateway/internal/testutils"
	"github.com/d4l-data4life/go-chat-gateway/pkg/handlers"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func adminDo(t *testing.T, srv http.Handler, token, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, testutils.GetRequestPayload(body))
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestProviderLifecycle(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)

	// Create
	w := adminDo(t, srv.Mux(), adminToken, "POST", "/api/v1/admin/providers", map[string]interface{}{
		"name":    "OpenAI",
		"type":    "openai",
		"baseUrl": "https://api.openai.com",
		"apiKey":  "sk-provider-key-4321",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created handlers.ProviderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "••••••••4321", created.APIKey)
	assert.False(t, created.IsCustom)
	assert.NotContains(t, w.Body.String(), "sk-provider-key-4321")

	// Duplicate name conflicts
	w = adminDo(t, srv.Mux(), adminToken, "POST", "/api/v1/admin/providers", map[string]interface{}{
		"name": "OpenAI",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Update without apiKey keeps the stored key
	w = adminDo(t, srv.Mux(), adminToken, "PATCH", "/api/v1/admin/providers/"+created.ID.String(), map[string]interface{}{
		"name": "OpenAI EU",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Provider
	require.NoError(t, db.Get().First(&stored, created.ID).Error)
	assert.Equal(t, "OpenAI EU", stored.Name)
	assert.Equal(t, "sk-provider-key-4321", stored.APIKey)

	// Delete
	w = adminDo(t, srv.Mux(), adminToken, "DELETE", "/api/v1/admin/providers/"+created.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeleteProvider_WithAttachedModels(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)
	provider := testutils.CreateTestProvider(t, models.ProviderTypeOpenAI, "https://api.openai.com")
	testutils.CreateTestModelConfig(t, "https://api.openai.com", true, &provider.ID)

	w := adminDo(t, srv.Mux(), adminToken, "DELETE", "/api/v1/admin/providers/"+provider.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The provider survives.
	var stored models.Provider
	assert.NoError(t, db.Get().First(&stored, provider.ID).Error)
}

func TestProviderTestKey(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-secret-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data": [{"id": "test-model"}]}`))
	}))
	defer upstream.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)
	provider := testutils.CreateTestProvider(t, models.ProviderTypeCustom, upstream.URL)

	// Stored key is valid
	w := adminDo(t, srv.Mux(), adminToken, "POST", "/api/v1/admin/providers/"+provider.ID.String()+"/test-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result["valid"])

	// A candidate key from the body is tested instead of the stored one
	w = adminDo(t, srv.Mux(), adminToken, "POST", "/api/v1/admin/providers/"+provider.ID.String()+"/test-key",
		map[string]string{"apiKey": "wrong-key"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result["valid"])
}

func TestListRemoteModels_Cached(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"data": [{"id": "m1"}, {"id": "m2"}]}`))
	}))
	defer upstream.Close()

	_, adminToken := testutils.CreateTestUser(t, models.UserRoleAdmin)
	provider := testutils.CreateTestProvider(t, models.ProviderTypeCustom, upstream.URL)

	url := "/api/v1/admin/providers/" + provider.ID.String() + "/models"
	for i := 0; i < 3; i++ {
		w := adminDo(t, srv.Mux(), adminToken, "GET", url, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Only the first request reaches the vendor, the rest is served from
	// the cache.
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
