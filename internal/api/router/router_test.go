package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/webchat/internal/api"
	"github.com/omnichat/webchat/internal/dto"
	"github.com/omnichat/webchat/internal/queue"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/storage"
	"github.com/omnichat/webchat/internal/webchat"
	"github.com/omnichat/webchat/internal/websocket"
)

type testServer struct {
	srv *httptest.Server
	hub *websocket.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub()
	go hub.Run(ctx)

	service := conversationservice.NewWithRepository(conversationservice.NewMemoryRepository(), nil)
	rqm := queue.NewRequestQueueManager(32, 4, zerolog.Nop())

	server := api.NewAPIServer(api.ServerConfig{
		ListenAddr:    ":0",
		Queue:         rqm,
		Conversations: service,
		Realtime:      websocket.NewHandler(hub, service, zerolog.Nop(), nil),
		Publisher:     websocket.NewLocalPublisher(hub),
		Logger:        zerolog.Nop(),
	}, All("")...)

	srv := httptest.NewServer(server.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
		rqm.Shutdown()
	})
	return &testServer{srv: srv, hub: hub}
}

func (ts *testServer) session(t *testing.T, store webchat.Store) *webchat.Session {
	t.Helper()
	sess := webchat.New(webchat.Config{
		APIBaseURL:       ts.srv.URL,
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}, store, webchat.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { sess.Close() })
	return sess
}

func (ts *testServer) agentReply(t *testing.T, conversationID, content string) {
	t.Helper()
	body, err := json.Marshal(dto.PostAgentMessageRequest{Content: content})
	require.NoError(t, err)
	resp, err := http.Post(ts.srv.URL+"/chat/conversations/"+conversationID+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func contents(snap webchat.Snapshot) []string {
	out := make([]string, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		out = append(out, m.Content)
	}
	return out
}

func TestWidgetSessionAgainstServer(t *testing.T) {
	ts := newTestServer(t)
	store := storage.NewMemory()
	ctx := context.Background()

	sess := ts.session(t, store)
	require.NoError(t, sess.Open(ctx))

	snap := sess.Snapshot()
	require.Equal(t, webchat.PhaseReady, snap.Phase)
	require.NotEmpty(t, snap.ConversationID)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Profile.FullName, "guest placeholder is not shown as a name")
	assert.True(t, snap.ShowProfileForm)
	conversationID := snap.ConversationID

	require.Eventually(t, func() bool {
		return ts.hub.RoomSize(conversationID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.SendMessage(ctx, "hello"))
	ts.agentReply(t, conversationID, "Hi, how can we help?")

	require.Eventually(t, func() bool {
		return len(sess.Snapshot().Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"hello", "Hi, how can we help?"}, contents(sess.Snapshot()))

	require.NoError(t, sess.SaveProfile(ctx, webchat.ContactProfile{Phone: "0900 000 000"}))
	snap = sess.Snapshot()
	assert.Equal(t, "0900 000 000", snap.Profile.Phone)
	assert.False(t, snap.ShowProfileForm)
	require.Eventually(t, func() bool {
		return len(sess.Snapshot().Messages) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Close())
	require.Eventually(t, func() bool {
		return ts.hub.RoomSize(conversationID) == 0
	}, 2*time.Second, 10*time.Millisecond)

	reopened := ts.session(t, store)
	require.NoError(t, reopened.Open(ctx))
	snap = reopened.Snapshot()
	assert.Equal(t, conversationID, snap.ConversationID)
	assert.Len(t, snap.Messages, 3)
	assert.Equal(t, "0900 000 000", snap.Profile.Phone)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "webchat_http_requests_total")
}
