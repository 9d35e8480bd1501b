package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Phase is the initialization state of a Session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	default:
		return "idle"
	}
}

// ProfileField names one editable contact field.
type ProfileField string

const (
	FieldFullName ProfileField = "fullName"
	FieldPhone    ProfileField = "phone"
	FieldEmail    ProfileField = "email"
	FieldAddress  ProfileField = "address"
)

// Snapshot is a point-in-time copy of the widget state, safe to render.
type Snapshot struct {
	Open            bool
	Phase           Phase
	Initializing    bool
	Sending         bool
	SavingProfile   bool
	ProfileSaved    bool
	Error           string
	Messages        []Message
	Profile         ContactProfile
	ShowProfileForm bool
	VisitorID       string
	ConversationID  string
	Draft           string
}

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithBackend replaces the HTTP client used for request/response calls.
func WithBackend(b Backend) Option {
	return func(s *Session) {
		s.backend = b
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		s.httpClient = c
	}
}

func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithoutRealtime disables the push channel; only request/response results
// reach the transcript.
func WithoutRealtime() Option {
	return func(s *Session) {
		s.realtime = false
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

type initKey struct {
	cycle  uint64
	handle string
}

// Session is one chat widget instance: identity, conversation bootstrap,
// the push subscription and the outbound submitters, all feeding a single
// deduplicated transcript.
type Session struct {
	cfg        Config
	backend    Backend
	httpClient *http.Client
	dialer     Dialer
	realtime   bool
	identity   *IdentityManager
	log        zerolog.Logger
	now        func() time.Time

	mountOnce sync.Once
	updates   chan struct{}

	mu       sync.Mutex
	open     bool
	closed   bool
	phase    Phase
	cycle    uint64
	gen      uint64
	lastInit initKey
	ranInit  bool

	sending        bool
	savingProfile  bool
	profileSavedAt time.Time

	visitorID      string
	conversationID string
	lastErr        error

	transcript      *transcript
	profile         ContactProfile
	showProfileForm bool
	draft           string

	sub *subscription
}

func New(cfg Config, store Store, opts ...Option) *Session {
	s := &Session{
		cfg:             cfg.withDefaults(),
		realtime:        true,
		log:             zerolog.Nop(),
		now:             time.Now,
		updates:         make(chan struct{}, 1),
		transcript:      newTranscript(),
		showProfileForm: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend == nil {
		client := NewClient(s.cfg, s.httpClient)
		client.now = s.now
		s.backend = client
	}
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.cfg.HTTPTimeout,
		}
	}
	s.identity = NewIdentityManager(store, s.log)
	s.identity.now = s.now
	return s
}

// Mount loads the visitor id and any stored conversation handle. It runs
// once; Open calls it implicitly.
func (s *Session) Mount(ctx context.Context) {
	s.mountOnce.Do(func() {
		visitorID := s.identity.EnsureVisitorID(ctx)
		handle, _ := s.identity.ConversationHandle(ctx)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.visitorID = visitorID
		s.conversationID = handle
		old := s.resubscribeLocked()
		s.mu.Unlock()

		if old != nil {
			old.Close()
		}
		s.log.Debug().Str("visitor_id", visitorID).Str("conversation_id", handle).Msg("widget mounted")
		s.notify()
	})
}

// Open shows the widget and runs the initializer. Errors are also placed in
// the error slot; calling Open on an open widget does nothing.
func (s *Session) Open(ctx context.Context) error {
	s.Mount(ctx)

	s.mu.Lock()
	if s.closed || s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = true
	s.cycle++
	s.mu.Unlock()
	s.notify()

	return s.initialize(ctx)
}

// Dismiss hides the widget. Initializer results still in flight are dropped.
func (s *Session) Dismiss() {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return
	}
	s.open = false
	s.gen++
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Toggle(ctx context.Context) error {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()

	if open {
		s.Dismiss()
		return nil
	}
	return s.Open(ctx)
}

// Close tears the session down and releases the push channel. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.open = false
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	s.notify()
	return nil
}

// initialize starts or resumes the conversation. Runs are keyed by open cycle
// and handle so a handle minted by start triggers exactly one follow-up
// resume, and a reopen during a stale run is picked up when that run ends.
func (s *Session) initialize(ctx context.Context) error {
	var firstErr error
	for {
		s.mu.Lock()
		if s.closed || !s.open || s.phase == PhaseInitializing || s.visitorID == "" {
			s.mu.Unlock()
			return firstErr
		}
		key := initKey{cycle: s.cycle, handle: s.conversationID}
		if s.ranInit && s.lastInit == key {
			s.mu.Unlock()
			return firstErr
		}
		s.ranInit = true
		s.lastInit = key
		s.phase = PhaseInitializing
		s.lastErr = nil
		gen := s.gen
		visitorID := s.visitorID
		s.mu.Unlock()
		s.notify()

		var err error
		if key.handle == "" {
			err = s.start(ctx, gen, visitorID)
		} else {
			err = s.resume(ctx, gen, key.handle)
		}
		stale := errors.Is(err, errStale)

		s.mu.Lock()
		switch {
		case stale:
			s.phase = PhaseIdle
		case err != nil:
			s.lastErr = err
			if key.handle == "" {
				s.phase = PhaseIdle
			} else {
				s.phase = PhaseReady
			}
		default:
			s.phase = PhaseReady
		}
		s.mu.Unlock()
		s.notify()

		if err != nil && !stale {
			s.log.Warn().Err(err).Str("visitor_id", visitorID).Str("conversation_id", key.handle).Msg("widget initialization failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
}

func (s *Session) start(ctx context.Context, gen uint64, visitorID string) error {
	state, err := s.backend.StartConversation(ctx, visitorID)
	observeRequest("start", err)
	if !s.current(gen) {
		return errStale
	}
	if err != nil {
		return asError(err, ErrorCodeSessionStart, msgStartFailed)
	}
	if state.ConversationID == "" {
		return newError(ErrorCodeProtocol, msgInvalidResponse, errors.New("start response has no conversation id"))
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return errStale
	}
	s.applyLocked(state)
	s.conversationID = state.ConversationID
	old := s.resubscribeLocked()
	s.mu.Unlock()

	// Persisted only once adopted, so storage never holds a handle the session lacks.
	s.identity.SaveConversationHandle(ctx, state.ConversationID)

	if old != nil {
		old.Close()
	}
	s.log.Info().Str("visitor_id", visitorID).Str("conversation_id", state.ConversationID).Msg("conversation started")
	return nil
}

// resume leaves local state untouched on failure.
func (s *Session) resume(ctx context.Context, gen uint64, handle string) error {
	state, err := s.backend.FetchConversation(ctx, handle)
	observeRequest("resume", err)
	if !s.current(gen) {
		return errStale
	}
	if err != nil {
		return asError(err, ErrorCodeSessionResume, msgResumeFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return errStale
	}
	s.applyLocked(state)
	return nil
}

func (s *Session) applyLocked(state ConversationState) {
	s.transcript.reset(state.Messages)
	messagesMerged.WithLabelValues(sourceSeed).Add(float64(s.transcript.len()))

	if state.Customer != nil {
		s.profile = profileFromCustomer(state.Customer.trimmed(), s.cfg.GuestName)
		if !s.profile.IsEmpty() {
			s.showProfileForm = false
		}
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.gen == gen
}

// resubscribeLocked keeps at most one subscription per (visitor, conversation)
// pair. The replaced subscription is returned for the caller to close once
// the lock is released.
func (s *Session) resubscribeLocked() *subscription {
	if s.sub != nil && s.sub.matches(s.visitorID, s.conversationID) && !s.closed {
		return nil
	}
	old := s.sub
	s.sub = nil
	if s.closed || !s.realtime || s.visitorID == "" || s.conversationID == "" {
		return old
	}

	s.sub = newSubscription(s.cfg, s.dialer, s.log, s.visitorID, s.conversationID, s.mergePush)
	s.sub.start()
	return old
}

func (s *Session) mergePush(sub *subscription, raw *rawMessage) {
	msg, ok := normalizeMessage(raw, s.now())
	if !ok {
		return
	}

	s.mu.Lock()
	if s.closed || s.sub != sub {
		s.mu.Unlock()
		return
	}
	appended := s.transcript.add(msg)
	s.mu.Unlock()

	observeMerge(sourcePush, appended)
	if appended {
		s.notify()
	}
}

// SendMessage posts text as the visitor. Blank text, missing identifiers or a
// send already in flight make it a silent no-op.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	_, err := s.send(ctx, text)
	return err
}

// send reports whether a request was actually made.
func (s *Session) send(ctx context.Context, text string) (bool, error) {
	content := strings.TrimSpace(text)

	s.mu.Lock()
	if content == "" || s.closed || s.sending || s.visitorID == "" || s.conversationID == "" {
		s.mu.Unlock()
		return false, nil
	}
	s.sending = true
	s.lastErr = nil
	req := SendRequest{
		VisitorID:      s.visitorID,
		ConversationID: s.conversationID,
		Content:        content,
	}
	s.mu.Unlock()
	s.notify()

	err := s.post(ctx, req, sourceResponse)

	s.mu.Lock()
	s.sending = false
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.log.Warn().Err(err).Str("visitor_id", req.VisitorID).Str("conversation_id", req.ConversationID).Msg("send message failed")
	}
	return true, err
}

// post sends one message and merges the confirmed record.
func (s *Session) post(ctx context.Context, req SendRequest, source string) error {
	msg, err := s.backend.PostMessage(ctx, req)
	observeRequest("send", err)
	if err != nil {
		return asError(err, ErrorCodeSend, msgSendFailed)
	}
	if msg == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	appended := s.transcript.add(*msg)
	s.mu.Unlock()

	observeMerge(source, appended)
	if appended {
		s.notify()
	}
	return nil
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
	s.notify()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Submit sends the draft and clears it only when the backend accepted it.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return nil
	}

	sent, err := s.send(ctx, draft)
	if err != nil || !sent {
		return err
	}

	s.mu.Lock()
	if s.draft == draft {
		s.draft = ""
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetProfileField edits the profile form without saving it.
func (s *Session) SetProfileField(field ProfileField, value string) {
	s.mu.Lock()
	switch field {
	case FieldFullName:
		s.profile.FullName = value
	case FieldPhone:
		s.profile.Phone = value
	case FieldEmail:
		s.profile.Email = value
	case FieldAddress:
		s.profile.Address = value
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) ShowProfileForm(show bool) {
	s.mu.Lock()
	s.showProfileForm = show
	s.mu.Unlock()
	s.notify()
}

// SaveProfileForm saves the fields edited through SetProfileField.
func (s *Session) SaveProfileForm(ctx context.Context) error {
	s.mu.Lock()
	fields := s.profile
	s.mu.Unlock()
	return s.SaveProfile(ctx, fields)
}

// SaveProfile sends the non-empty fields to the backend, merges the stored
// record and posts a contact summary into the conversation. The summary is
// best-effort.
func (s *Session) SaveProfile(ctx context.Context, fields ContactProfile) error {
	fields = fields.trimmed()

	s.mu.Lock()
	if fields.IsEmpty() || s.closed || s.savingProfile || s.visitorID == "" || s.conversationID == "" {
		s.mu.Unlock()
		return nil
	}
	s.savingProfile = true
	s.lastErr = nil
	visitorID, conversationID := s.visitorID, s.conversationID
	s.mu.Unlock()
	s.notify()

	server, err := s.backend.UpdateProfile(ctx, ProfileRequest{
		ConversationID: conversationID,
		VisitorID:      visitorID,
		FullName:       fields.FullName,
		Phone:          fields.Phone,
		Email:          fields.Email,
		Address:        fields.Address,
	})
	observeRequest("profile", err)
	if err != nil {
		err = asError(err, ErrorCodeProfileSave, msgProfileSaveFailed)
		s.mu.Lock()
		s.savingProfile = false
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		s.log.Warn().Err(err).Str("visitor_id", visitorID).Str("conversation_id", conversationID).Msg("profile save failed")
		return err
	}

	merged := fields
	if server != nil {
		merged = mergeProfile(profileFromCustomer(server.trimmed(), s.cfg.GuestName), fields)
	}

	// The summary lists what the visitor typed, not the merged profile.
	if summary := contactSummary(fields); summary != "" {
		serr := s.post(ctx, SendRequest{
			VisitorID:      visitorID,
			ConversationID: conversationID,
			Content:        summary,
		}, sourceSummary)
		if serr != nil {
			s.log.Warn().
				Err(newError(ErrorCodeSummarySend, "", serr)).
				Str("visitor_id", visitorID).
				Str("conversation_id", conversationID).
				Msg("contact summary not delivered")
		}
	}

	s.mu.Lock()
	s.savingProfile = false
	s.profile = merged
	s.profileSavedAt = s.now()
	s.showProfileForm = false
	s.mu.Unlock()
	s.notify()
	return nil
}

// Updates signals after every state change. Signals coalesce; read Snapshot
// after each one.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Open:            s.open,
		Phase:           s.phase,
		Initializing:    s.phase == PhaseInitializing,
		Sending:         s.sending,
		SavingProfile:   s.savingProfile,
		Messages:        s.transcript.snapshot(),
		Profile:         s.profile,
		ShowProfileForm: s.showProfileForm,
		VisitorID:       s.visitorID,
		ConversationID:  s.conversationID,
		Draft:           s.draft,
	}
	if s.lastErr != nil {
		snap.Error = userMessage(s.lastErr)
	}
	if !s.profileSavedAt.IsZero() && s.now().Sub(s.profileSavedAt) < s.cfg.ProfileSavedNotice {
		snap.ProfileSaved = true
	}
	return snap
}

// Err returns the error currently held in the error slot.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// asError keeps a typed widget error as is and wraps anything else.
func asError(err error, code ErrorCode, message string) *Error {
	var wErr *Error
	if errors.As(err, &wErr) {
		return wErr
	}
	return newError(code, message, err)
}
