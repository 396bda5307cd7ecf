package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/docstore"
	"account_gateway/internal/identity"
	"account_gateway/internal/identity/memory"
	"account_gateway/platform/apperr"
	"account_gateway/platform/events"
	"account_gateway/platform/logger"

	"golang.org/x/crypto/bcrypt"
)

// fakeProvider is a scriptable identity.Provider.
type fakeProvider struct {
	feed *events.Feed[*identity.Identity]

	mu            sync.Mutex
	calls         []string
	subscriptions int

	signIn         *identity.Identity
	createErr      error
	verifyErr      error
	invalidateErr  error
	resetErr       error
	updateEmailErr error
	deleteErr      error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		feed:   events.NewFeed[*identity.Identity](nil),
		signIn: &identity.Identity{ID: "user-1", Email: "ada@example.com"},
	}
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakeProvider) called() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) emit(id *identity.Identity) { p.feed.Publish(id) }

func (p *fakeProvider) CreateIdentity(context.Context, string, string) (*identity.Identity, error) {
	p.record("CreateIdentity")
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.signIn.Clone(), nil
}

func (p *fakeProvider) VerifyCredentials(context.Context, string, string) (*identity.Identity, error) {
	p.record("VerifyCredentials")
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return p.signIn.Clone(), nil
}

func (p *fakeProvider) InvalidateSession(context.Context) error {
	p.record("InvalidateSession")
	return p.invalidateErr
}

func (p *fakeProvider) SendResetEmail(context.Context, string) error {
	p.record("SendResetEmail")
	return p.resetErr
}

func (p *fakeProvider) UpdateEmail(context.Context, *identity.Identity, string) error {
	p.record("UpdateEmail")
	return p.updateEmailErr
}

func (p *fakeProvider) UpdatePassword(context.Context, *identity.Identity, string) error {
	p.record("UpdatePassword")
	return nil
}

func (p *fakeProvider) DeleteIdentity(context.Context, *identity.Identity) error {
	p.record("DeleteIdentity")
	return p.deleteErr
}

func (p *fakeProvider) Subscribe(fn func(*identity.Identity)) func() {
	p.mu.Lock()
	p.subscriptions++
	p.mu.Unlock()

	unsubscribe := p.feed.Subscribe(fn)
	return func() {
		p.mu.Lock()
		p.subscriptions--
		p.mu.Unlock()
		unsubscribe()
	}
}

// failingRecords injects record errors on top of a real repository.
type failingRecords struct {
	repository.RecordRepository
	createErr error
	deleteErr error
	getErr    error
}

func (r *failingRecords) CreateUser(ctx context.Context, userID, email string) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.RecordRepository.CreateUser(ctx, userID, email)
}

func (r *failingRecords) DeleteUser(ctx context.Context, userID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.RecordRepository.DeleteUser(ctx, userID)
}

func (r *failingRecords) GetUser(ctx context.Context, userID string) (repository.UserRecord, error) {
	if r.getErr != nil {
		return repository.UserRecord{}, r.getErr
	}
	return r.RecordRepository.GetUser(ctx, userID)
}

type recordingCleanup struct {
	mu      sync.Mutex
	userIDs []string
}

func (r *recordingCleanup) ScheduleUserRecordCleanup(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userIDs = append(r.userIDs, userID)
	return nil
}

type harness struct {
	ctrl    *Controller
	dir     *memory.Directory
	client  *memory.Client
	store   *docstore.MemoryStore
	records *repository.Repository
	logs    *bytes.Buffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	dir := memory.NewDirectory(memory.WithBcryptCost(bcrypt.MinCost))
	client := dir.NewClient()
	store := docstore.NewMemoryStore()
	records := repository.New(store)
	logs := &bytes.Buffer{}

	ctrl := New(client, records, logger.NewWithWriter("test", logs), opts...)
	t.Cleanup(func() {
		ctrl.Close()
		client.Close()
	})
	return &harness{ctrl: ctrl, dir: dir, client: client, store: store, records: records, logs: logs}
}

func TestSessionFollowsLastStreamEvent(t *testing.T) {
	provider := newFakeProvider()
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	a := &identity.Identity{ID: "a", Email: "a@example.com"}
	b := &identity.Identity{ID: "b", Email: "b@example.com"}

	provider.emit(a)
	if got := ctrl.Current(); got == nil || got.ID != "a" {
		t.Fatalf("expected session a, got %+v", got)
	}

	ctrl.Login(ctx, "ada@example.com", "secret1")
	provider.emit(b)
	if got := ctrl.Current(); got == nil || got.ID != "b" {
		t.Fatalf("stream event must supersede the optimistic login, got %+v", got)
	}

	provider.emit(nil)
	ctrl.FetchUserRecord(ctx)
	if got := ctrl.Current(); got != nil {
		t.Fatalf("expected signed out, got %+v", got)
	}

	provider.emit(a)
	if got := ctrl.Current(); got == nil || got.ID != "a" {
		t.Fatalf("expected session a again, got %+v", got)
	}
}

func TestLoginSetsSessionBeforeReturning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.dir.NewClient().CreateIdentity(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	res := h.ctrl.Login(ctx, "ada@example.com", "secret1")
	if !res.OK() {
		t.Fatalf("expected OK, got %s: %v", res.Kind(), res.Err())
	}
	if got := h.ctrl.Current(); got == nil || got.ID != created.ID {
		t.Fatalf("expected session %s, got %+v", created.ID, got)
	}
	if res.Value().ID != created.ID {
		t.Fatalf("expected returned identity %s, got %+v", created.ID, res.Value())
	}
}

func TestLoginWithInvalidCredentialsLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.dir.NewClient().CreateIdentity(ctx, "ada@example.com", "secret1"); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	res := h.ctrl.Login(ctx, "ada@example.com", "wrong-password")
	if res.Kind() != KindFailure {
		t.Fatalf("expected failure, got %s", res.Kind())
	}
	if !apperr.Is(res.Err(), apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized failure, got %v", res.Err())
	}
	if res.Value() != nil {
		t.Fatalf("expected no value, got %+v", res.Value())
	}
	if h.ctrl.Current() != nil {
		t.Fatalf("expected no session, got %+v", h.ctrl.Current())
	}

	if !h.ctrl.Login(ctx, "ada@example.com", "secret1").OK() {
		t.Fatal("expected valid login to succeed")
	}
	signedIn := h.ctrl.Current()
	h.ctrl.Login(ctx, "ada@example.com", "wrong-password")
	if got := h.ctrl.Current(); got == nil || got.ID != signedIn.ID {
		t.Fatalf("failed login must not change the session, got %+v", got)
	}
}

func TestLogoutAlwaysClearsSession(t *testing.T) {
	provider := newFakeProvider()
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	if res := ctrl.Logout(ctx); !res.OK() {
		t.Fatalf("logout without session: expected OK, got %s", res.Kind())
	}
	if ctrl.Current() != nil {
		t.Fatal("expected no session")
	}

	ctrl.Login(ctx, "ada@example.com", "secret1")
	provider.invalidateErr = errors.New("network unreachable")
	res := ctrl.Logout(ctx)
	if res.Kind() != KindFailure {
		t.Fatalf("expected failure to be reported, got %s", res.Kind())
	}
	if ctrl.Current() != nil {
		t.Fatalf("logout must clear the session even when the provider fails, got %+v", ctrl.Current())
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if !h.ctrl.Register(ctx, "ada@example.com", "secret1").OK() {
		t.Fatal("register failed")
	}

	first := h.ctrl.Logout(ctx)
	afterFirst := h.ctrl.Current()
	second := h.ctrl.Logout(ctx)
	afterSecond := h.ctrl.Current()

	if first.Kind() != second.Kind() {
		t.Fatalf("expected same outcome, got %s then %s", first.Kind(), second.Kind())
	}
	if afterFirst != nil || afterSecond != nil {
		t.Fatalf("expected no session after both calls, got %+v and %+v", afterFirst, afterSecond)
	}
}

func TestOperationsWithoutSessionReportNoSession(t *testing.T) {
	provider := newFakeProvider()
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	results := map[string]interface {
		Kind() Kind
		Err() error
	}{
		"changeEmail":        ctrl.ChangeEmail(ctx, "new@example.com"),
		"changePassword":     ctrl.ChangePassword(ctx, "newsecret"),
		"deleteAccount":      ctrl.DeleteAccount(ctx),
		"fetchUserRecord":    ctrl.FetchUserRecord(ctx),
		"fetchProfileRecord": ctrl.FetchProfileRecord(ctx),
	}

	for name, res := range results {
		if res.Kind() != KindNoSession {
			t.Fatalf("%s: expected no_session, got %s", name, res.Kind())
		}
		if !errors.Is(res.Err(), ErrNoSession) {
			t.Fatalf("%s: expected ErrNoSession, got %v", name, res.Err())
		}
	}
	if calls := provider.called(); len(calls) != 0 {
		t.Fatalf("expected no provider calls, got %v", calls)
	}
	if rec := ctrl.FetchUserRecord(ctx).Value(); rec != (repository.UserRecord{}) {
		t.Fatalf("expected zero value, got %+v", rec)
	}
	if profile := ctrl.FetchProfileRecord(ctx).Value(); profile != nil {
		t.Fatalf("expected nil profile, got %v", profile)
	}
}

func TestRegisterCreatesOneUserRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.ctrl.Register(ctx, "ada@example.com", "secret1")
	if !res.OK() {
		t.Fatalf("expected OK, got %s: %v", res.Kind(), res.Err())
	}
	id := res.Value()
	if got := h.ctrl.Current(); got == nil || got.ID != id.ID {
		t.Fatalf("expected session %s, got %+v", id.ID, got)
	}

	doc, err := h.store.Get(ctx, repository.UsersCollection, id.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !doc.Exists || len(doc.Data) != 1 || doc.Data["email"] != "ada@example.com" {
		t.Fatalf("expected {email} record at identity id, got %+v", doc)
	}
}

func TestRegisterWithTakenEmailFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.dir.NewClient().CreateIdentity(ctx, "ada@example.com", "secret1"); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	res := h.ctrl.Register(ctx, "ada@example.com", "secret1")
	if !apperr.Is(res.Err(), apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", res.Err())
	}
	if h.ctrl.Current() != nil {
		t.Fatal("expected no session after failed register")
	}
}

func TestRegisterRecordFailureKeepsSession(t *testing.T) {
	provider := newFakeProvider()
	records := &failingRecords{
		RecordRepository: repository.New(docstore.NewMemoryStore()),
		createErr:        errors.New("store unavailable"),
	}
	ctrl := New(provider, records, logger.Discard())
	defer ctrl.Close()

	res := ctrl.Register(context.Background(), "ada@example.com", "secret1")
	if res.Kind() != KindFailure {
		t.Fatalf("expected failure, got %s", res.Kind())
	}
	if got := ctrl.Current(); got == nil || got.ID != provider.signIn.ID {
		t.Fatalf("identity was created, session must be set, got %+v", got)
	}
}

func TestDeleteAccountRemovesSessionAndRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.ctrl.Register(ctx, "ada@example.com", "secret1").Value()

	if res := h.ctrl.DeleteAccount(ctx); !res.OK() {
		t.Fatalf("expected OK, got %s: %v", res.Kind(), res.Err())
	}
	if h.ctrl.Current() != nil {
		t.Fatalf("expected no session, got %+v", h.ctrl.Current())
	}
	if _, err := h.records.GetUser(ctx, id.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected record to be gone, got %v", err)
	}
	if _, err := h.dir.NewClient().VerifyCredentials(ctx, "ada@example.com", "secret1"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected identity to be gone, got %v", err)
	}
}

func TestDeleteAccountSchedulesCleanupWhenRecordDeleteFails(t *testing.T) {
	provider := newFakeProvider()
	records := &failingRecords{
		RecordRepository: repository.New(docstore.NewMemoryStore()),
		deleteErr:        errors.New("store unavailable"),
	}
	cleanup := &recordingCleanup{}
	ctrl := New(provider, records, logger.Discard(), WithCleanupScheduler(cleanup))
	defer ctrl.Close()
	ctx := context.Background()

	ctrl.Login(ctx, "ada@example.com", "secret1")
	res := ctrl.DeleteAccount(ctx)
	if res.Kind() != KindFailure {
		t.Fatalf("expected failure, got %s", res.Kind())
	}
	if ctrl.Current() != nil {
		t.Fatal("identity is deleted, session must be cleared")
	}
	if len(cleanup.userIDs) != 1 || cleanup.userIDs[0] != provider.signIn.ID {
		t.Fatalf("expected cleanup for %s, got %v", provider.signIn.ID, cleanup.userIDs)
	}
}

func TestDeleteAccountIdentityFailureKeepsSession(t *testing.T) {
	provider := newFakeProvider()
	provider.deleteErr = identity.ErrRequiresRecentLogin
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	ctrl.Login(ctx, "ada@example.com", "secret1")
	res := ctrl.DeleteAccount(ctx)
	if !apperr.Is(res.Err(), apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", res.Err())
	}
	if ctrl.Current() == nil {
		t.Fatal("session must survive a failed identity deletion")
	}
}

func TestChangeEmailUpdatesRecordAndSessionFollowsProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.ctrl.Register(ctx, "ada@example.com", "secret1").Value()

	if res := h.ctrl.ChangeEmail(ctx, "lovelace@example.com"); !res.OK() {
		t.Fatalf("expected OK, got %s: %v", res.Kind(), res.Err())
	}

	rec, err := h.records.GetUser(ctx, id.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Email != "lovelace@example.com" {
		t.Fatalf("expected merged email, got %q", rec.Email)
	}
	if got := h.ctrl.Current(); got == nil || got.Email != "lovelace@example.com" {
		t.Fatalf("expected provider event to refresh the session, got %+v", got)
	}
}

func TestChangeEmailProviderFailureSkipsRecord(t *testing.T) {
	provider := newFakeProvider()
	provider.updateEmailErr = identity.ErrEmailInUse
	store := docstore.NewMemoryStore()
	ctrl := New(provider, repository.New(store), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	ctrl.Login(ctx, "ada@example.com", "secret1")
	if res := ctrl.ChangeEmail(ctx, "taken@example.com"); !apperr.Is(res.Err(), apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", res.Err())
	}
	if doc, _ := store.Get(ctx, repository.UsersCollection, provider.signIn.ID); doc.Exists {
		t.Fatalf("record must not be written after a provider failure, got %+v", doc)
	}
}

func TestChangePasswordUsesProvider(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.Register(ctx, "ada@example.com", "secret1")

	if res := h.ctrl.ChangePassword(ctx, "123"); !apperr.Is(res.Err(), apperr.KindValidation) {
		t.Fatalf("expected validation failure for weak password, got %v", res.Err())
	}
	if res := h.ctrl.ChangePassword(ctx, "n3w-secret"); !res.OK() {
		t.Fatalf("expected OK, got %s: %v", res.Kind(), res.Err())
	}
	if _, err := h.dir.NewClient().VerifyCredentials(ctx, "ada@example.com", "n3w-secret"); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	provider := newFakeProvider()
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	defer ctrl.Close()
	ctx := context.Background()

	if res := ctrl.RequestPasswordReset(ctx, "ada@example.com"); !res.OK() {
		t.Fatalf("expected OK, got %s", res.Kind())
	}
	provider.resetErr = errors.New("smtp down")
	if res := ctrl.RequestPasswordReset(ctx, "ada@example.com"); !apperr.Is(res.Err(), apperr.KindInternal) {
		t.Fatalf("expected internal failure, got %v", res.Err())
	}
}

func TestFetchRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.ctrl.Register(ctx, "ada@example.com", "secret1").Value()

	user := h.ctrl.FetchUserRecord(ctx)
	if !user.OK() || user.Value().Email != "ada@example.com" {
		t.Fatalf("unexpected user record result %s %+v", user.Kind(), user.Value())
	}

	profile := h.ctrl.FetchProfileRecord(ctx)
	if profile.Kind() != KindEmpty || !errors.Is(profile.Err(), ErrNotFound) {
		t.Fatalf("expected empty profile, got %s", profile.Kind())
	}

	if err := h.store.Set(ctx, repository.ProfilesCollection, id.ID, map[string]any{"displayName": "Ada"}, docstore.SetOptions{}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	profile = h.ctrl.FetchProfileRecord(ctx)
	if !profile.OK() || profile.Value()["displayName"] != "Ada" {
		t.Fatalf("unexpected profile result %s %+v", profile.Kind(), profile.Value())
	}

	byID := h.ctrl.FetchUserRecordByID(ctx, id.ID)
	if !byID.OK() || byID.Value().Email != "ada@example.com" {
		t.Fatalf("unexpected record by id %s %+v", byID.Kind(), byID.Value())
	}
}

func TestFetchUserRecordByIDMissingIsEmptyAndLogged(t *testing.T) {
	h := newHarness(t)

	res := h.ctrl.FetchUserRecordByID(context.Background(), "does-not-exist")
	if res.Kind() != KindEmpty {
		t.Fatalf("expected empty, got %s", res.Kind())
	}
	if res.Value() != (repository.UserRecord{}) {
		t.Fatalf("expected zero value, got %+v", res.Value())
	}
	if !strings.Contains(h.logs.String(), "not found") {
		t.Fatalf("expected a not found log line, got %q", h.logs.String())
	}
}

func TestFetchUserRecordStoreFailure(t *testing.T) {
	provider := newFakeProvider()
	records := &failingRecords{
		RecordRepository: repository.New(docstore.NewMemoryStore()),
		getErr:           context.DeadlineExceeded,
	}
	ctrl := New(provider, records, logger.Discard())
	defer ctrl.Close()

	res := ctrl.FetchUserRecordByID(context.Background(), "u1")
	if !apperr.Is(res.Err(), apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", res.Err())
	}
}

func TestDeleteUserRecordByID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.records.CreateUser(ctx, "u1", "x@example.com"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if res := h.ctrl.DeleteUserRecordByID(ctx, "u1"); !res.OK() {
		t.Fatalf("expected OK, got %s", res.Kind())
	}
	if res := h.ctrl.DeleteUserRecordByID(ctx, "u1"); !res.OK() {
		t.Fatalf("deleting a missing record must succeed, got %s", res.Kind())
	}
	if res := h.ctrl.DeleteUserRecordByID(ctx, ""); !apperr.Is(res.Err(), apperr.KindValidation) {
		t.Fatalf("expected validation failure for empty id, got %v", res.Err())
	}
}

func TestCompatModeLogging(t *testing.T) {
	h := newHarness(t, WithCompatMode())
	ctx := context.Background()

	res := h.ctrl.FetchUserRecord(ctx)
	if res.Kind() != KindNoSession {
		t.Fatalf("compat mode must keep kinds distinct, got %s", res.Kind())
	}
	if h.logs.Len() != 0 {
		t.Fatalf("compat mode must not log missing sessions, got %q", h.logs.String())
	}

	h.ctrl.FetchUserRecordByID(ctx, "missing")
	if !strings.Contains(h.logs.String(), "no user document found") {
		t.Fatalf("expected legacy not-found wording, got %q", h.logs.String())
	}

	h.ctrl.Login(ctx, "nobody@example.com", "secret1")
	if !strings.Contains(h.logs.String(), "error during sign-in") {
		t.Fatalf("expected legacy failure wording, got %q", h.logs.String())
	}
}

func TestDefaultModeLogsNoSessionAtDebug(t *testing.T) {
	h := newHarness(t)

	h.ctrl.ChangePassword(context.Background(), "whatever")
	out := h.logs.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "no active session") {
		t.Fatalf("expected debug no-session line, got %q", out)
	}
}

func TestSubscribeObservesSessionChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var seen []string
	unsubscribe := h.ctrl.Subscribe(func(id *identity.Identity) {
		if id == nil {
			seen = append(seen, "<nil>")
			return
		}
		seen = append(seen, id.Email)
	})

	h.ctrl.Register(ctx, "ada@example.com", "secret1")
	h.ctrl.Logout(ctx)
	unsubscribe()
	unsubscribe()
	h.ctrl.Login(ctx, "ada@example.com", "secret1")

	if len(seen) == 0 || seen[0] != "<nil>" {
		t.Fatalf("expected current session first, got %v", seen)
	}
	if seen[len(seen)-1] != "<nil>" {
		t.Fatalf("expected logout as the last delivered change, got %v", seen)
	}
	for _, s := range seen {
		if s != "<nil>" && s != "ada@example.com" {
			t.Fatalf("unexpected delivery %q", s)
		}
	}
}

func TestSubscriberMayCallBackIntoController(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ctrl.Subscribe(func(id *identity.Identity) {
		if id != nil {
			h.ctrl.Logout(ctx)
		}
	})

	h.ctrl.Register(ctx, "ada@example.com", "secret1")
	if h.ctrl.Current() != nil {
		t.Fatalf("expected handler-driven logout to win, got %+v", h.ctrl.Current())
	}
}

func TestCloseReleasesProviderSubscriptionOnce(t *testing.T) {
	provider := newFakeProvider()
	ctrl := New(provider, repository.New(docstore.NewMemoryStore()), logger.Discard())
	if provider.subscriptions != 1 {
		t.Fatalf("expected one provider subscription, got %d", provider.subscriptions)
	}

	ctrl.Close()
	ctrl.Close()
	if provider.subscriptions != 0 {
		t.Fatalf("expected subscription released exactly once, got %d", provider.subscriptions)
	}
	if provider.feed.Subscribers() != 0 {
		t.Fatalf("expected no provider feed subscribers, got %d", provider.feed.Subscribers())
	}

	calls := 0
	ctrl.Subscribe(func(*identity.Identity) { calls++ })
	provider.emit(&identity.Identity{ID: "late"})
	if calls != 0 {
		t.Fatalf("closed controller must not deliver, got %d calls", calls)
	}
}

func TestResultAccessors(t *testing.T) {
	res := ok(42)
	if v, err := res.Unwrap(); v != 42 || err != nil {
		t.Fatalf("unexpected unwrap %d %v", v, err)
	}

	boom := errors.New("boom")
	failed := failure[int](boom)
	if failed.Value() != 0 || !errors.Is(failed.Err(), boom) {
		t.Fatalf("unexpected failure accessors %d %v", failed.Value(), failed.Err())
	}
	if empty[int]().Kind().String() != "empty" || noSession[int]().Kind().String() != "no_session" {
		t.Fatal("unexpected kind names")
	}
}
