package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/backend/internal/query"
	"github.com/sitechat/backend/internal/storage/models"
	"github.com/sitechat/backend/internal/tenant"
)

type fakeChatService struct {
	response *query.Response
	history  []models.ChatRecord
	err      error
	lastReq  query.Request
}

func (f *fakeChatService) Answer(ctx context.Context, req query.Request) (*query.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeChatService) History(ctx context.Context, slug string, limit int) ([]models.ChatRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func chatApp(svc ChatService) *fiber.App {
	app := fiber.New()
	h := NewChatHandler(svc)
	app.Post("/api/v1/chat", h.HandleChat)
	app.Get("/api/v1/chat/history", h.HandleHistory)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, int(5*time.Second/time.Millisecond))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleChat(t *testing.T) {
	svc := &fakeChatService{response: &query.Response{
		Text:           "We are open weekdays.",
		WelcomeMessage: "Welcome!",
		FromKB:         true,
	}}
	app := chatApp(svc)

	resp := postJSON(t, app, "/api/v1/chat", map[string]string{
		"slug":    "acme",
		"message": "What are your hours?",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "We are open weekdays.", body["text"])
	assert.Equal(t, "Welcome!", body["welcome_message"])
	assert.Equal(t, true, body["from_kb"])

	assert.Equal(t, "acme", svc.lastReq.Slug)
	assert.False(t, svc.lastReq.Debug)
}

func TestHandleChatMissingFields(t *testing.T) {
	app := chatApp(&fakeChatService{})

	resp := postJSON(t, app, "/api/v1/chat", map[string]string{"slug": "acme"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleChatInvalidBody(t *testing.T) {
	app := chatApp(&fakeChatService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleChatUnknownTenant(t *testing.T) {
	app := chatApp(&fakeChatService{err: tenant.ErrTenantNotFound})

	resp := postJSON(t, app, "/api/v1/chat", map[string]string{
		"slug":    "ghost",
		"message": "hi",
	})

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Unknown tenant", body["error"])
}

func TestHandleChatDebugFlag(t *testing.T) {
	svc := &fakeChatService{response: &query.Response{}}
	app := chatApp(svc)

	resp := postJSON(t, app, "/api/v1/chat?debug=1", map[string]string{
		"slug":    "acme",
		"message": "hi",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, svc.lastReq.Debug)
}

func TestHandleHistory(t *testing.T) {
	svc := &fakeChatService{history: []models.ChatRecord{
		{Message: "hi", Response: "hello", FromKB: true, CreatedAt: time.Unix(1700000000, 0)},
	}}
	app := chatApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?slug=acme", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	require.Len(t, history, 1)

	entry := history[0].(map[string]interface{})
	assert.Equal(t, "hi", entry["message"])
	assert.Equal(t, "hello", entry["response"])
	assert.Equal(t, true, entry["from_kb"])
}

func TestHandleHistoryMissingSlug(t *testing.T) {
	app := chatApp(&fakeChatService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHistoryUnknownTenant(t *testing.T) {
	app := chatApp(&fakeChatService{err: tenant.ErrTenantNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?slug=ghost", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
