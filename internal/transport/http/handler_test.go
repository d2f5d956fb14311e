package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
	"github.com/sweetebin/agent-hippocrates/internal/service"
	"github.com/sweetebin/agent-hippocrates/internal/testutil"
	handler "github.com/sweetebin/agent-hippocrates/internal/transport/http"
)

func newTestServer(t *testing.T) (*echo.Echo, *agent.MockRunner) {
	t.Helper()

	st := testutil.NewTestStore(t)
	models := agent.Models{
		Intake:     "model-intake",
		Specialist: "model-specialist",
		Vision:     "model-vision",
	}
	runner := agent.NewMockRunner()
	reg := registry.New(st, models)
	svc := service.New(st, reg, runner, 10)

	e := echo.New()
	handler.NewHandler(svc).RegisterRoutes(e)
	return e, runner
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInitializeEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/initialize", `{"user_id":"tg-1001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.NotEmpty(t, resp["session_id"])
}

func TestInitializeRequiresUserID(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/initialize", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageEndpoint(t *testing.T) {
	e, runner := newTestServer(t)
	runner.EnqueueReply("When did the pain start?")

	rec := doJSON(e, http.MethodPost, "/message",
		`{"user_id":"tg-1001","message":{"role":"user","content":"my back hurts"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Response, 1)
	assert.Equal(t, "assistant", resp.Response[0].Role)
	assert.Equal(t, "When did the pain start?", resp.Response[0].Content)
}

func TestMessageEndpointAcceptsPlainString(t *testing.T) {
	e, runner := newTestServer(t)
	runner.EnqueueReply("Tell me more.")

	rec := doJSON(e, http.MethodPost, "/message",
		`{"user_id":"tg-1001","message":"my back hurts"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, runner.Calls, 1)
	last := runner.Calls[0].Messages[len(runner.Calls[0].Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "my back hurts", last.Content)
}

func TestMessageEndpointValidation(t *testing.T) {
	e, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"Missing User", `{"message":{"role":"user","content":"hi"}}`},
		{"Missing Message", `{"user_id":"tg-1001"}`},
		{"Empty Content", `{"user_id":"tg-1001","message":{"role":"user","content":""}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/message", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestMessageEndpointUpstreamFailure(t *testing.T) {
	e, runner := newTestServer(t)
	runner.EnqueueError(errors.New("upstream timeout"))

	rec := doJSON(e, http.MethodPost, "/message",
		`{"user_id":"tg-1001","message":{"role":"user","content":"hi"}}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProcessImagesEndpoint(t *testing.T) {
	e, runner := newTestServer(t)
	runner.EnqueueReply("Chest x-ray, lungs clear.")
	runner.EnqueueReply("No abnormalities visible.")

	rec := doJSON(e, http.MethodPost, "/process_images",
		`{"user_id":"tg-1001","images":["base64-payload"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Response []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"response"`
		ProcessedImagesCount int `json:"processed_images_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ProcessedImagesCount)
	require.NotEmpty(t, resp.Response)
	assert.Equal(t, "No abnormalities visible.", resp.Response[len(resp.Response)-1].Content)
}

func TestProcessImagesRequiresImages(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/process_images", `{"user_id":"tg-1001","images":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	// Clearing a user that was never seen still succeeds.
	rec := doJSON(e, http.MethodPost, "/clear", `{"user_id":"tg-unknown"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Contains(t, resp["message"], "tg-unknown")
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
