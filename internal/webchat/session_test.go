package webchat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/webchat/internal/storage"
)

type fakeBackend struct {
	mu sync.Mutex

	calls         []string
	start         ConversationState
	startErr      error
	startCalled   chan struct{}
	startGate     chan struct{}
	conversations map[string]ConversationState
	fetchErr      error

	sent      []SendRequest
	sendErr   func(SendRequest) error
	sendGate  chan struct{}
	sendCalls chan struct{}
	nextID    int

	profiles    []ProfileRequest
	profileResp *ContactProfile
	profileErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		conversations: make(map[string]ConversationState),
		startCalled:   make(chan struct{}, 4),
		sendCalls:     make(chan struct{}, 4),
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) StartConversation(ctx context.Context, visitorID string) (ConversationState, error) {
	f.record("start")
	f.startCalled <- struct{}{}
	if f.startGate != nil {
		<-f.startGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return ConversationState{}, f.startErr
	}
	if _, ok := f.conversations[f.start.ConversationID]; !ok {
		f.conversations[f.start.ConversationID] = f.start
	}
	return f.start, nil
}

func (f *fakeBackend) FetchConversation(ctx context.Context, conversationID string) (ConversationState, error) {
	f.record("resume " + conversationID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return ConversationState{}, f.fetchErr
	}
	state, ok := f.conversations[conversationID]
	if !ok {
		return ConversationState{}, newError(ErrorCodeSessionResume, msgResumeFailed, &StatusError{StatusCode: 404})
	}
	return state, nil
}

func (f *fakeBackend) PostMessage(ctx context.Context, req SendRequest) (*Message, error) {
	f.record("send")
	f.sendCalls <- struct{}{}
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		if err := f.sendErr(req); err != nil {
			return nil, err
		}
	}
	f.nextID++
	return &Message{
		ID:         fmt.Sprintf("m%d", f.nextID),
		Content:    req.Content,
		SenderType: "customer",
		CreatedAt:  fixedNow.Format(time.RFC3339),
	}, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, req ProfileRequest) (*ContactProfile, error) {
	f.record("profile")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, req)
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profileResp, nil
}

func newTestSession(t *testing.T, backend Backend, store Store, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithBackend(backend), WithoutRealtime(), WithClock(func() time.Time { return fixedNow })}, opts...)
	s := New(Config{}, store, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenStartsConversationWhenNoHandleStored(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1", Messages: []Message{}}
	store := storage.NewMemory()

	s := newTestSession(t, backend, store)
	require.NoError(t, s.Open(ctx))

	assert.Equal(t, []string{"start", "resume c1"}, backend.Calls())

	handle, err := store.Get(ctx, ConversationIDKey)
	require.NoError(t, err)
	assert.Equal(t, "c1", handle)

	snap := s.Snapshot()
	assert.True(t, snap.Open)
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Equal(t, "c1", snap.ConversationID)
	assert.NotEmpty(t, snap.VisitorID)
	assert.Empty(t, snap.Error)

	// reopening the same cycle does nothing
	require.NoError(t, s.Open(ctx))
	assert.Len(t, backend.Calls(), 2)
}

func TestOpenResumesStoredHandle(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.conversations["c9"] = ConversationState{
		ConversationID: "c9",
		Messages:       []Message{{ID: "m1"}, {ID: "m2"}, {ID: "m1"}},
		Customer:       &ContactProfile{FullName: " Lan ", Phone: "0900"},
	}
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, VisitorIDKey, "visitor-1"))
	require.NoError(t, store.Set(ctx, ConversationIDKey, "c9"))

	s := newTestSession(t, backend, store)
	require.NoError(t, s.Open(ctx))

	assert.Equal(t, []string{"resume c9"}, backend.Calls())

	snap := s.Snapshot()
	assert.Equal(t, "visitor-1", snap.VisitorID)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, ContactProfile{FullName: "Lan", Phone: "0900"}, snap.Profile)
	assert.False(t, snap.ShowProfileForm)
}

func TestGuestNameLeavesProfileFormShown(t *testing.T) {
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1", Customer: &ContactProfile{FullName: "  khách WEB chat "}}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(context.Background()))

	snap := s.Snapshot()
	assert.Empty(t, snap.Profile.FullName)
	assert.True(t, snap.ShowProfileForm)
}

func TestSendAndPushScenario(t *testing.T) {
	ctx := context.Background()
	ps := newPushServer(t)

	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1", Messages: []Message{}}

	s := New(Config{APIBaseURL: ps.srv.URL}, storage.NewMemory(),
		WithBackend(backend),
		WithDialer(websocket.DefaultDialer),
		WithClock(func() time.Time { return fixedNow }),
	)
	defer s.Close()

	require.NoError(t, s.Open(ctx))
	conn := ps.nextJoin(t)

	require.NoError(t, s.SendMessage(ctx, "hello"))
	backend.mu.Lock()
	require.Len(t, backend.sent, 1)
	assert.Equal(t, SendRequest{VisitorID: s.Snapshot().VisitorID, ConversationID: "c1", Content: "hello"}, backend.sent[0])
	backend.mu.Unlock()
	require.Len(t, s.Snapshot().Messages, 1)
	assert.Equal(t, "m1", s.Snapshot().Messages[0].ID)

	// the echo of m1 over the push channel is dropped, m9 is appended
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "newMessage", "data": map[string]any{"id": "m1", "content": "hello", "senderType": "customer"}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "newMessage", "data": map[string]any{"id": "m9", "content": "hi there", "senderType": "agent"}}))

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	msgs := s.Snapshot().Messages
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m9", msgs[1].ID)
	assert.Equal(t, OriginCounterpart, msgs[1].Origin())
}

func TestBlankSendsMakeNoCall(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	require.NoError(t, s.SendMessage(ctx, ""))
	require.NoError(t, s.SendMessage(ctx, "   "))
	assert.NotContains(t, backend.Calls(), "send")
}

func TestSendBeforeConversationIsNoop(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSession(t, backend, storage.NewMemory())

	require.NoError(t, s.SendMessage(context.Background(), "hello"))
	assert.Empty(t, backend.Calls())
}

func TestSendIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	backend.sendGate = make(chan struct{})

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	first := make(chan error, 1)
	go func() { first <- s.SendMessage(ctx, "one") }()
	<-backend.sendCalls

	assert.True(t, s.Snapshot().Sending)
	require.NoError(t, s.SendMessage(ctx, "two"))

	close(backend.sendGate)
	require.NoError(t, <-first)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.sent, 1)
	assert.Equal(t, "one", backend.sent[0].Content)
	assert.False(t, s.Snapshot().Sending)
}

func TestSendFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	backend.sendErr = func(SendRequest) error { return errors.New("connection reset") }

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	s.SetDraft("  hello  ")
	err := s.Submit(ctx)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrorCodeSend))

	snap := s.Snapshot()
	assert.Equal(t, "  hello  ", snap.Draft)
	assert.Equal(t, msgSendFailed, snap.Error)
	assert.Empty(t, snap.Messages)

	backend.mu.Lock()
	backend.sendErr = nil
	backend.mu.Unlock()

	require.NoError(t, s.Submit(ctx))
	snap = s.Snapshot()
	assert.Empty(t, snap.Draft)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Content)
}

func TestStartFailureSurfacesAndRetriesOnReopen(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.startErr = newError(ErrorCodeSessionStart, msgStartFailed, &StatusError{StatusCode: 500})
	store := storage.NewMemory()

	s := newTestSession(t, backend, store)
	err := s.Open(ctx)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrorCodeSessionStart))

	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, msgStartFailed, snap.Error)
	_, err = store.Get(ctx, ConversationIDKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	backend.mu.Lock()
	backend.startErr = nil
	backend.start = ConversationState{ConversationID: "c2"}
	backend.mu.Unlock()

	s.Dismiss()
	require.NoError(t, s.Toggle(ctx))
	assert.Equal(t, []string{"start", "start", "resume c2"}, backend.Calls())
	assert.Empty(t, s.Snapshot().Error)
}

func TestPlainBackendErrorsAreClassified(t *testing.T) {
	backend := newFakeBackend()
	backend.startErr = errors.New("dial tcp: connection refused")

	s := newTestSession(t, backend, storage.NewMemory())
	err := s.Open(context.Background())
	assert.True(t, IsCode(err, ErrorCodeSessionStart))
	assert.Equal(t, msgStartFailed, s.Snapshot().Error)
}

func TestResumeFailureKeepsStateAndAllowsSending(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.fetchErr = errors.New("network down")
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, ConversationIDKey, "c1"))

	s := newTestSession(t, backend, store)
	err := s.Open(ctx)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrorCodeSessionResume))

	snap := s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, msgResumeFailed, snap.Error)
	assert.Equal(t, PhaseReady, snap.Phase)

	require.NoError(t, s.SendMessage(ctx, "still here"))
	assert.Len(t, s.Snapshot().Messages, 1)
	assert.NotContains(t, backend.Calls(), "start")
}

func TestDismissDropsInFlightStart(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1", Messages: []Message{{ID: "m0"}}}
	backend.startGate = make(chan struct{})
	store := storage.NewMemory()

	s := newTestSession(t, backend, store)
	done := make(chan error, 1)
	go func() { done <- s.Open(ctx) }()
	<-backend.startCalled

	assert.True(t, s.Snapshot().Initializing)
	s.Dismiss()
	close(backend.startGate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.False(t, snap.Open)
	assert.Empty(t, snap.ConversationID)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Error)
	_, err := store.Get(ctx, ConversationIDKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// hookStore runs onSet after each successful write.
type hookStore struct {
	*storage.Memory
	onSet func(key string)
}

func (h *hookStore) Set(ctx context.Context, key, value string) error {
	if err := h.Memory.Set(ctx, key, value); err != nil {
		return err
	}
	if h.onSet != nil {
		h.onSet(key)
	}
	return nil
}

func TestDismissWhilePersistingHandleKeepsItAdopted(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	store := &hookStore{Memory: storage.NewMemory()}

	s := newTestSession(t, backend, store)
	store.onSet = func(key string) {
		if key == ConversationIDKey {
			s.Dismiss()
		}
	}
	require.NoError(t, s.Open(ctx))

	stored, err := store.Get(ctx, ConversationIDKey)
	require.NoError(t, err)
	assert.Equal(t, "c1", stored)
	assert.Equal(t, "c1", s.Snapshot().ConversationID)

	store.onSet = nil
	require.NoError(t, s.Open(ctx))
	assert.Equal(t, []string{"start", "resume c1"}, backend.Calls())
}

func TestReopenDuringStaleRunIsPickedUp(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	gate := make(chan struct{})
	backend.startGate = gate

	s := newTestSession(t, backend, storage.NewMemory())
	done := make(chan error, 1)
	go func() { done <- s.Open(ctx) }()
	<-backend.startCalled

	s.Dismiss()
	require.NoError(t, s.Open(ctx))
	close(gate)

	require.NoError(t, <-done)
	assert.Equal(t, []string{"start", "start", "resume c1"}, backend.Calls())
	snap := s.Snapshot()
	assert.True(t, snap.Open)
	assert.Equal(t, "c1", snap.ConversationID)
	assert.Equal(t, PhaseReady, snap.Phase)
}

func TestSaveProfileEmptyMakesNoCall(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	require.NoError(t, s.SaveProfile(ctx, ContactProfile{}))
	require.NoError(t, s.SaveProfile(ctx, ContactProfile{FullName: "  ", Email: "\t"}))
	assert.NotContains(t, backend.Calls(), "profile")
}

func TestSaveProfileMergesAndPostsSummary(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	backend.profileResp = &ContactProfile{FullName: "Khách Web Chat", Email: "lan@example.com"}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	s.SetProfileField(FieldFullName, " Lan ")
	s.SetProfileField(FieldPhone, "0900")
	require.NoError(t, s.SaveProfileForm(ctx))

	backend.mu.Lock()
	require.Len(t, backend.profiles, 1)
	assert.Equal(t, ProfileRequest{ConversationID: "c1", VisitorID: s.visitorID, FullName: "Lan", Phone: "0900"}, backend.profiles[0])
	require.Len(t, backend.sent, 1)
	assert.Equal(t, "Visitor contact details:\n• Full name: Lan\n• Phone: 0900", backend.sent[0].Content)
	backend.mu.Unlock()

	snap := s.Snapshot()
	assert.Equal(t, ContactProfile{FullName: "Lan", Phone: "0900", Email: "lan@example.com"}, snap.Profile)
	assert.True(t, snap.ProfileSaved)
	assert.False(t, snap.ShowProfileForm)
	assert.False(t, snap.SavingProfile)
	assert.Len(t, snap.Messages, 1)
}

func TestSaveProfileNoticeExpires(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	var mu sync.Mutex
	now := fixedNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s := newTestSession(t, backend, storage.NewMemory(), WithClock(clock))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SaveProfile(ctx, ContactProfile{Email: "a@b.c"}))
	assert.True(t, s.Snapshot().ProfileSaved)

	mu.Lock()
	now = now.Add(defaultProfileSavedNotice)
	mu.Unlock()
	assert.False(t, s.Snapshot().ProfileSaved)
}

func TestSummaryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	backend.sendErr = func(SendRequest) error { return errors.New("summary rejected") }

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SaveProfile(ctx, ContactProfile{Phone: "0900"}))

	snap := s.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, "0900", snap.Profile.Phone)
	assert.True(t, snap.ProfileSaved)
}

func TestSaveProfileFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}
	backend.profileErr = errors.New("bad gateway")

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))

	err := s.SaveProfile(ctx, ContactProfile{Phone: "0900"})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrorCodeProfileSave))

	snap := s.Snapshot()
	assert.Equal(t, msgProfileSaveFailed, snap.Error)
	assert.True(t, snap.ShowProfileForm)
	assert.False(t, snap.ProfileSaved)
	assert.NotContains(t, backend.Calls(), "send")
}

func TestBrokenStorageStillChats(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	s := newTestSession(t, backend, &brokenStore{})
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.SendMessage(ctx, "hi"))
	assert.Len(t, s.Snapshot().Messages, 1)
}

func TestCloseStopsEverything(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(ctx))
	calls := len(backend.Calls())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.NoError(t, s.SendMessage(ctx, "late"))
	require.NoError(t, s.Open(ctx))
	assert.Len(t, backend.Calls(), calls)
	assert.False(t, s.Snapshot().Open)
}

func TestUpdatesSignal(t *testing.T) {
	backend := newFakeBackend()
	backend.start = ConversationState{ConversationID: "c1"}

	s := newTestSession(t, backend, storage.NewMemory())
	require.NoError(t, s.Open(context.Background()))

	select {
	case <-s.Updates():
	default:
		t.Fatal("expected a pending update signal")
	}

	s.SetDraft("x")
	select {
	case <-s.Updates():
	case <-time.After(time.Second):
		t.Fatal("SetDraft did not signal")
	}
}
