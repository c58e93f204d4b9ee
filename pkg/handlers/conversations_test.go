package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-chat-gateway/internal/testutils"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func TestConversationLifecycle(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, token := testutils.CreateTestUser(t, models.UserRoleUser)

	do := func(method, url string, body interface{}) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, url, testutils.GetRequestPayload(body))
		} else {
			req = httptest.NewRequest(method, url, nil)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		srv.Mux().ServeHTTP(w, req)
		return w
	}

	// Create with default title
	w := do("POST", "/api/v1/conversations", map[string]string{})
	require.Equal(t, http.StatusCreated, w.Code)
	var conversation models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conversation))
	assert.Equal(t, models.DefaultConversationTitle, conversation.Title)

	// List contains it
	w = do("GET", "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, conversation.ID, listed[0].ID)

	// Rename
	w = do("PATCH", "/api/v1/conversations/"+conversation.ID.String(), map[string]string{"title": "🎯 Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conversation))
	assert.Equal(t, "🎯 Renamed", conversation.Title)

	// Empty title is rejected
	w = do("PATCH", "/api/v1/conversations/"+conversation.ID.String(), map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Explicit title overwrite, repeated calls just win last
	w = do("POST", "/api/v1/conversations/"+conversation.ID.String()+"/title", map[string]string{"title": "First"})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do("POST", "/api/v1/conversations/"+conversation.ID.String()+"/title", map[string]string{"title": "Second"})
	require.Equal(t, http.StatusNoContent, w.Code)

	var stored models.Conversation
	require.NoError(t, db.Get().First(&stored, conversation.ID).Error)
	assert.Equal(t, "Second", stored.Title)

	// Delete removes it and its messages
	testutils.CreateTestMessage(t, conversation.ID, models.MessageRoleUser, "hello")
	w = do("DELETE", "/api/v1/conversations/"+conversation.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do("GET", "/api/v1/conversations/"+conversation.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var messageCount int64
	require.NoError(t, db.Get().Model(&models.Message{}).
		Where("conversation_id = ?", conversation.ID).
		Count(&messageCount).Error)
	assert.Zero(t, messageCount)
}

func TestConversationOwnership(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	owner, _ := testutils.CreateTestUser(t, models.UserRoleUser)
	_, strangerToken := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, owner.ID)

	tests := []struct {
		name   string
		method string
		url    string
	}{
		{"get", "GET", "/api/v1/conversations/" + conversation.ID.String()},
		{"rename", "PATCH", "/api/v1/conversations/" + conversation.ID.String()},
		{"delete", "DELETE", "/api/v1/conversations/" + conversation.ID.String()},
		{"messages", "GET", "/api/v1/conversations/" + conversation.ID.String() + "/messages"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, testutils.GetRequestPayload(map[string]string{"title": "x"}))
			req.Header.Set("Authorization", "Bearer "+strangerToken)
			w := httptest.NewRecorder()
			srv.Mux().ServeHTTP(w, req)
			// Foreign conversations are indistinguishable from missing ones.
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestConversation_InvalidID(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	_, token := testutils.CreateTestUser(t, models.UserRoleUser)

	req := httptest.NewRequest("GET", "/api/v1/conversations/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateTitle_EmptyConversation(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	user, token := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, user.ID)

	req := httptest.NewRequest("POST", "/api/v1/conversations/"+conversation.ID.String()+"/generate-title", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationsAreScopedPerUser(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	alice, aliceToken := testutils.CreateTestUser(t, models.UserRoleUser)
	bob, _ := testutils.CreateTestUser(t, models.UserRoleUser)
	testutils.CreateTestConversation(t, alice.ID)
	testutils.CreateTestConversation(t, bob.ID)
	testutils.CreateTestConversation(t, bob.ID)

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listed []models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, alice.ID, listed[0].UserID)
	assert.NotEqual(t, uuid.Nil, listed[0].ID)
}
