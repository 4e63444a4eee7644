package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"buildmatic/internal/chat"
	"buildmatic/internal/event"
	"buildmatic/internal/skills"
	"buildmatic/internal/todo"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// echoRunner answers every prompt with "echo: <prompt>" and records the
// history length it was handed.
type echoRunner struct {
	mu       sync.Mutex
	seen     []int
	err      error
	useTools bool
}

func (r *echoRunner) RunPrompt(ctx context.Context, history []chat.Message, prompt string, sink event.Sink) ([]chat.Message, error) {
	r.mu.Lock()
	r.seen = append(r.seen, len(history))
	r.mu.Unlock()

	out := append(append([]chat.Message(nil), history...), chat.UserText(prompt))
	if r.err != nil {
		sink.Emit(event.Error(r.err.Error()))
		return out, r.err
	}
	if r.useTools {
		sink.Emit(event.ToolStart("bash", json.RawMessage(`{"command":"ls"}`)))
		sink.Emit(event.ToolResult("bash", "a.txt"))
	}
	answer := "echo: " + prompt
	sink.Emit(event.Text(answer))
	sink.Emit(event.Done(answer))
	return append(out, chat.Message{Role: chat.RoleAssistant, Content: []chat.Block{chat.TextBlock(answer)}}), nil
}

func (r *echoRunner) Conversation() Conversation { return r }

func (r *echoRunner) Model() string { return "test-model" }

func (r *echoRunner) Skills() *skills.Loader { return skills.Empty() }

func (r *echoRunner) histories() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen...)
}

// todoRunner opens a conversation with a fresh tracker each time. A prompt
// "todo <task>" marks task in progress; every reply is the rendered list.
type todoRunner struct {
	mu    sync.Mutex
	opens int
}

func (r *todoRunner) Conversation() Conversation {
	r.mu.Lock()
	r.opens++
	r.mu.Unlock()
	return &todoConversation{todos: todo.NewTracker()}
}

func (r *todoRunner) Model() string { return "test-model" }

func (r *todoRunner) Skills() *skills.Loader { return skills.Empty() }

type todoConversation struct {
	todos *todo.Tracker
}

func (c *todoConversation) RunPrompt(ctx context.Context, history []chat.Message, prompt string, sink event.Sink) ([]chat.Message, error) {
	if task, ok := strings.CutPrefix(prompt, "todo "); ok {
		if _, err := c.todos.Update([]todo.Item{{Content: task, Status: todo.StatusInProgress, ActiveForm: "Working"}}); err != nil {
			return history, err
		}
	}
	answer := c.todos.Render()
	sink.Emit(event.Text(answer))
	sink.Emit(event.Done(answer))
	return append(append([]chat.Message(nil), history...), chat.UserText(prompt),
		chat.Message{Role: chat.RoleAssistant, Content: []chat.Block{chat.TextBlock(answer)}}), nil
}

func newTestServer(t *testing.T, runner Runner, secret string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(runner, Config{JWTSecret: secret}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, &echoRunner{}, "")
	resp, err := srv.Client().Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "test-model", got.Model)
	assert.NotNil(t, got.Skills)
}

func TestChatSync(t *testing.T) {
	runner := &echoRunner{}
	srv := newTestServer(t, runner, "")

	resp := postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got syncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "echo: hi", got.Response)
	require.Len(t, got.History, 2)
	assert.Equal(t, chat.RoleAssistant, got.History[1].Role)

	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "again", History: got.History}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{0, 2}, runner.histories())
}

func TestChatSyncError(t *testing.T) {
	srv := newTestServer(t, &echoRunner{err: errors.New("completion call: boom")}, "")
	resp := postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "completion call: boom", got["error"])
}

func TestChatRequiresMessage(t *testing.T) {
	srv := newTestServer(t, &echoRunner{}, "")
	for _, path := range []string{"/api/chat", "/api/chat/sync"} {
		resp := postJSON(t, srv, path, chatRequest{Message: "  "}, "")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		var got map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "message is required", got["error"], path)
	}
}

func TestChatStreamsSSE(t *testing.T) {
	srv := newTestServer(t, &echoRunner{useTools: true}, "")
	resp := postJSON(t, srv, "/api/chat", chatRequest{Message: "hi"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(body)

	assert.Contains(t, stream, "event: tool_start\ndata: {\"input\":{\"command\":\"ls\"},\"name\":\"bash\"}\n\n")
	assert.Contains(t, stream, "event: tool_result\ndata: {\"name\":\"bash\",\"output\":\"a.txt\"}\n\n")
	assert.Contains(t, stream, "event: text\ndata: {\"content\":\"echo: hi\"}\n\n")
	assert.True(t, strings.HasSuffix(stream, "event: done\ndata: {\"response\":\"echo: hi\"}\n\n"))
}

type wireEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func readUntilTerminal(t *testing.T, conn *websocket.Conn) []wireEvent {
	t.Helper()
	var out []wireEvent
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev))
		out = append(out, ev)
		if event.Kind(ev.Type).Terminal() {
			return out
		}
	}
}

func TestChatWebsocketKeepsHistory(t *testing.T) {
	runner := &echoRunner{}
	srv := newTestServer(t, runner, "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "one"}))
	events := readUntilTerminal(t, conn)
	require.Len(t, events, 2)
	assert.Equal(t, "text", events[0].Type)
	assert.Equal(t, "echo: one", events[0].Data["content"])
	assert.Equal(t, "done", events[1].Type)

	require.NoError(t, conn.WriteJSON(chatRequest{Message: ""}))
	events = readUntilTerminal(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Equal(t, "message is required", events[0].Data["message"])

	require.NoError(t, conn.WriteJSON(chatRequest{Message: "two"}))
	readUntilTerminal(t, conn)

	assert.Equal(t, []int{0, 2}, runner.histories())
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestChatRequestsDoNotShareTodos(t *testing.T) {
	runner := &todoRunner{}
	srv := newTestServer(t, runner, "")

	resp := postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "todo client A secret task"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a syncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
	assert.Equal(t, "[>] client A secret task\n(0/1 done)", a.Response)

	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "what is left?"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b syncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, "No todos.", b.Response)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 2, runner.opens)
}

func TestChatWebsocketKeepsTodosPerConnection(t *testing.T) {
	runner := &todoRunner{}
	srv := newTestServer(t, runner, "")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.WriteJSON(chatRequest{Message: "todo ship it"}))
	readUntilTerminal(t, first)
	require.NoError(t, first.WriteJSON(chatRequest{Message: "status"}))
	events := readUntilTerminal(t, first)
	require.NotEmpty(t, events)
	assert.Equal(t, "[>] ship it\n(0/1 done)", events[0].Data["content"])

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.WriteJSON(chatRequest{Message: "status"}))
	events = readUntilTerminal(t, second)
	require.NotEmpty(t, events)
	assert.Equal(t, "No todos.", events[0].Data["content"])

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 2, runner.opens)
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "s3cret"
	srv := newTestServer(t, &echoRunner{}, secret)

	resp, err := srv.Client().Get(srv.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "status stays public")

	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := IssueToken("other", "alice", time.Hour)
	require.NoError(t, err)
	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := IssueToken(secret, "alice", -time.Hour)
	require.NoError(t, err)
	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, expired)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "non-positive ttl issues a token without expiry")

	token, err := IssueToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	resp = postJSON(t, srv, "/api/chat/sync", chatRequest{Message: "hi"}, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	subject, err := validateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)

	_, err = IssueToken("", "alice", time.Hour)
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(&echoRunner{}, Config{Logger: zap.New(core)})
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	started := logs.FilterMessage("api server listening").All()
	require.Len(t, started, 1)
	assert.Equal(t, ln.Addr().String(), started[0].ContextMap()["addr"])
	assert.Equal(t, false, started[0].ContextMap()["auth"])
}
