package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4l-data4life/go-chat-gateway/internal/testutils"
	"github.com/d4l-data4life/go-chat-gateway/pkg/handlers"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

// chatCompletionsMock streams the given deltas for any streaming request and
// answers non-streaming (title) requests with a canned JSON title.
func chatCompletionsMock(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if !req.Stream {
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-title",
				"model": "test-model",
				"choices": [{"message": {"role": "assistant", "content": "{\"title\": \"💬 Mock Title\"}"}}]
			}`))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, delta := range deltas {
			frame, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"delta": map[string]string{"content": delta}},
				},
			})
			_, _ = w.Write([]byte("data: " + string(frame) + "\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

func TestListMessages_OrderedHistory(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	user, token := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, user.ID)
	testutils.CreateTestMessage(t, conversation.ID, models.MessageRoleUser, "first")
	testutils.CreateTestMessage(t, conversation.ID, models.MessageRoleAssistant, "second")
	testutils.CreateTestMessage(t, conversation.ID, models.MessageRoleUser, "third")

	req := httptest.NewRequest("GET", "/api/v1/conversations/"+conversation.ID.String()+"/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []models.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestSendMessage_StreamsRawFragments(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	upstream := chatCompletionsMock(t, []string{"To", "ken", " stream"})
	defer upstream.Close()

	user, token := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, user.ID)
	testutils.CreateTestModelConfig(t, upstream.URL, true, nil)

	req := httptest.NewRequest("POST",
		"/api/v1/conversations/"+conversation.ID.String()+"/messages",
		testutils.GetRequestPayload(handlers.SendMessageRequest{Content: "stream please"}))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	// The body is the raw concatenation of upstream fragments.
	assert.Equal(t, "Token stream", w.Body.String())

	var persisted []models.Message
	require.NoError(t, db.Get().
		Where("conversation_id = ?", conversation.ID).
		Order(models.MessageOrder).
		Find(&persisted).Error)
	require.Len(t, persisted, 2)
	assert.Equal(t, "stream please", persisted[0].Content)
	assert.Equal(t, "Token stream", persisted[1].Content)
}

func TestStreamMessages_WebSocketExchange(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	upstream := chatCompletionsMock(t, []string{"Hi", " there"})
	defer upstream.Close()

	user, token := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, user.ID)
	testutils.CreateTestModelConfig(t, upstream.URL, true, nil)

	httpServer := httptest.NewServer(srv.Mux())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") +
		"/api/v1/conversations/" + conversation.ID.String() + "/messages/stream?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(handlers.SendMessageRequest{Content: "hello"}))

	var content string
	for done := false; !done; {
		var event map[string]interface{}
		require.NoError(t, conn.ReadJSON(&event))
		switch event["type"] {
		case "content":
			fragment, _ := event["content"].(string)
			content += fragment
		case "done":
			done = true
		default:
			t.Fatalf("unexpected event: %v", event)
		}
	}
	assert.Equal(t, "Hi there", content)

	var persisted []models.Message
	require.NoError(t, db.Get().
		Where("conversation_id = ?", conversation.ID).
		Order(models.MessageOrder).
		Find(&persisted).Error)
	require.Len(t, persisted, 2)
	assert.Equal(t, "Hi there", persisted[1].Content)
}

func TestSendMessage_Validation(t *testing.T) {
	srv := testutils.GetTestMockServer(t)
	defer db.Close()

	user, token := testutils.CreateTestUser(t, models.UserRoleUser)
	conversation := testutils.CreateTestConversation(t, user.ID)

	tests := []struct {
		name           string
		url            string
		payload        interface{}
		expectedStatus int
	}{
		{
			"empty content",
			"/api/v1/conversations/" + conversation.ID.String() + "/messages",
			handlers.SendMessageRequest{},
			http.StatusBadRequest,
		},
		{
			"invalid conversation id",
			"/api/v1/conversations/nope/messages",
			handlers.SendMessageRequest{Content: "hi"},
			http.StatusBadRequest,
		},
		{
			"no enabled model",
			"/api/v1/conversations/" + conversation.ID.String() + "/messages",
			handlers.SendMessageRequest{Content: "hi"},
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.url, testutils.GetRequestPayload(tt.payload))
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			srv.Mux().ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
