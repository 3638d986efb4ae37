package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/queue"
	"github.com/sandevgo/chorus/internal/service/agent"
	"github.com/sandevgo/chorus/internal/service/prompt"
	"github.com/sandevgo/chorus/internal/service/turn"
	"github.com/sandevgo/chorus/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Chat(ctx context.Context, history []core.Message, tools []core.Tool) (core.Message, error) {
	if p.err != nil {
		return core.Message{}, p.err
	}
	return core.Message{Role: core.RoleAssistant, Content: p.reply}, nil
}

type stubResolver struct{ provider core.AIProvider }

func (r *stubResolver) ProviderFor(ctx context.Context, persona core.Persona) (core.AIProvider, error) {
	return r.provider, nil
}

type noRetrieval struct{}

func (noRetrieval) SearchContext(ctx context.Context, query string, limit int, threshold float32) []core.ContextItem {
	return nil
}

func (noRetrieval) SearchKnowledge(ctx context.Context, topics []string, limit int, threshold float32) []core.ContextItem {
	return nil
}

type noTools struct{}

func (noTools) GetTools(ctx context.Context) ([]core.Tool, error) { return nil, nil }
func (noTools) CallTool(ctx context.Context, name, args string, tc core.ToolContext) (string, error) {
	return "", errors.New("no tools")
}

func newTestServer(t *testing.T, provider core.AIProvider) (*httptest.Server, *session.Store) {
	t.Helper()

	store := session.NewStore(0, 0)
	runner := turn.NewRunner(
		[]core.Persona{{
			Name:         "muse",
			DisplayName:  "The Muse",
			SystemPrompt: "You are Muse.",
			Provider:     "openai",
			Model:        "gpt-test",
		}},
		&stubResolver{provider: provider},
		store,
		queue.New(),
		prompt.NewAssembler(0, 0),
		noRetrieval{},
		agent.NewAgent(noTools{}),
		nil,
		turn.Config{RetrievalLimit: 5, RetrievalThreshold: 0.6},
	)

	s := NewServer(&config.ServerConfig{Addr: ":0"}, runner)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

func postChat(t *testing.T, ts *httptest.Server, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/v1/chat", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestChatEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubProvider{reply: "hello"})

	resp := postChat(t, ts, chatRequest{UserID: "u1", Persona: "muse", Message: "hi"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "hello", out.Reply)
	assert.Equal(t, "u1:muse", out.SessionID)
	assert.Equal(t, "The Muse", out.Persona)
}

func TestChatValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t, &stubProvider{reply: "x"})

	resp := postChat(t, ts, chatRequest{Persona: "muse", Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postChat(t, ts, chatRequest{UserID: "u1", Persona: "ghost", Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(ts.URL+"/v1/chat", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestChatBusySession(t *testing.T) {
	ts, store := newTestServer(t, &stubProvider{reply: "x"})

	// Simulate an in-flight turn by locking the session directly.
	store.GetOrCreate("u1:muse", session.Config{SystemPrompt: "You are Muse."})
	require.True(t, store.TryLock("u1:muse"))
	defer store.Unlock("u1:muse")

	resp := postChat(t, ts, chatRequest{UserID: "u1", Persona: "muse", Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChatModelFailure(t *testing.T) {
	ts, _ := newTestServer(t, &stubProvider{err: errors.New("upstream down")})

	resp := postChat(t, ts, chatRequest{UserID: "u1", Persona: "muse", Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestPersonasAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, &stubProvider{reply: "x"})

	resp, err := http.Get(ts.URL + "/v1/personas")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var personas []personaInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&personas))
	require.Len(t, personas, 1)
	assert.Equal(t, "muse", personas[0].Name)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
