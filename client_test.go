package sessionkit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sessionkit/sessionkit/storage"
	"github.com/sessionkit/sessionkit/transport"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// stubBackend counts calls and answers from function fields; nil fields answer
// with a generic success.
type stubBackend struct {
	signInCalls  atomic.Int64
	refreshCalls atomic.Int64
	signOutCalls atomic.Int64
	actionCalls  atomic.Int64

	signUpFn  func(email, password string) (*transport.SessionPayload, *transport.APIError)
	signInFn  func(email, password string) (*transport.SessionPayload, *transport.MFAChallenge, *transport.APIError)
	refreshFn func(refreshToken string) (*transport.SessionPayload, *transport.APIError)
	actionFn  func(accessToken string) *transport.APIError
}

func testSession(suffix string) *transport.SessionPayload {
	return &transport.SessionPayload{
		AccessToken:          "access-" + suffix,
		AccessTokenExpiresIn: 900,
		RefreshToken:         "refresh-" + suffix,
		User:                 &transport.User{ID: "user-1", Email: "a@b.c"},
	}
}

func (b *stubBackend) SignUpEmailPassword(_ context.Context, email, password string, _ transport.SignUpOptions) (*transport.SessionPayload, *transport.APIError) {
	if b.signUpFn != nil {
		return b.signUpFn(email, password)
	}
	return testSession("signup"), nil
}

func (b *stubBackend) SignInEmailPassword(_ context.Context, email, password string) (*transport.SessionPayload, *transport.MFAChallenge, *transport.APIError) {
	b.signInCalls.Add(1)
	if b.signInFn != nil {
		return b.signInFn(email, password)
	}
	return testSession("signin"), nil, nil
}

func (b *stubBackend) SignInPasswordlessEmail(context.Context, string, transport.ActionOptions) *transport.APIError {
	return nil
}

func (b *stubBackend) SignInMFATOTP(context.Context, string, string) (*transport.SessionPayload, *transport.APIError) {
	return testSession("mfa"), nil
}

func (b *stubBackend) RefreshToken(_ context.Context, refreshToken string) (*transport.SessionPayload, *transport.APIError) {
	b.refreshCalls.Add(1)
	if b.refreshFn != nil {
		return b.refreshFn(refreshToken)
	}
	return testSession("fresh"), nil
}

func (b *stubBackend) SignOut(context.Context, string, bool) *transport.APIError {
	b.signOutCalls.Add(1)
	return nil
}

func (b *stubBackend) ResetPassword(context.Context, string, transport.ActionOptions) *transport.APIError {
	b.actionCalls.Add(1)
	if b.actionFn != nil {
		return b.actionFn("")
	}
	return nil
}

func (b *stubBackend) ChangePassword(_ context.Context, accessToken, _ string) *transport.APIError {
	b.actionCalls.Add(1)
	if b.actionFn != nil {
		return b.actionFn(accessToken)
	}
	return nil
}

func (b *stubBackend) ChangeEmail(_ context.Context, accessToken, _ string, _ transport.ActionOptions) *transport.APIError {
	b.actionCalls.Add(1)
	if b.actionFn != nil {
		return b.actionFn(accessToken)
	}
	return nil
}

func (b *stubBackend) SendVerificationEmail(context.Context, string, transport.ActionOptions) *transport.APIError {
	b.actionCalls.Add(1)
	if b.actionFn != nil {
		return b.actionFn("")
	}
	return nil
}

func buildTestClient(t *testing.T, backend *stubBackend, adapter storage.Adapter, clock Clock) *Client {
	t.Helper()

	builder := New("https://auth.example.com").
		WithTransport(backend).
		WithClock(clock).
		WithMetricsEnabled(true)
	if adapter != nil {
		builder.WithStorage(adapter)
	}

	client, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestSignInLifecycle(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	if result.Error != nil || result.MFA != nil {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Session == nil || result.Session.AccessToken != "access-signin" {
		t.Fatalf("unexpected session: %+v", result.Session)
	}
	if result.Session.AccessTokenExpiresIn != 900 {
		t.Fatalf("expiresIn %d, want 900", result.Session.AccessTokenExpiresIn)
	}

	if !client.IsAuthenticated() {
		t.Fatal("not authenticated after sign-in")
	}
	if got := client.GetAccessToken(); got != "access-signin" {
		t.Fatalf("GetAccessToken %q", got)
	}
	if user := client.GetUser(); user == nil || user.ID != "user-1" {
		t.Fatalf("GetUser %+v", user)
	}

	signOut, err := client.SignOut(context.Background())
	if err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if signOut.Error != nil {
		t.Fatalf("sign-out rejected: %+v", signOut.Error)
	}
	if client.IsAuthenticated() || client.GetSession() != nil {
		t.Fatal("session survived sign-out")
	}
	waitFor(t, func() bool { return backend.signOutCalls.Load() == 1 })
}

func TestSignInFailureIsDataNotError(t *testing.T) {
	backend := &stubBackend{}
	backend.signInFn = func(string, string) (*transport.SessionPayload, *transport.MFAChallenge, *transport.APIError) {
		return nil, nil, &transport.APIError{Message: "bad credentials", Status: 401}
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignInEmailPassword(context.Background(), "a@b.c", "wrong")
	if err != nil {
		t.Fatalf("flow failure leaked as Go error: %v", err)
	}
	if result.Error == nil || result.Error.Status != 401 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if client.IsAuthenticated() {
		t.Fatal("authenticated after failed sign-in")
	}
	if lastErr := client.LastError("authentication"); lastErr == nil || lastErr.Message != "bad credentials" {
		t.Fatalf("retained error %+v", lastErr)
	}
}

func TestSignInUnverifiedEmailSurfacesError(t *testing.T) {
	backend := &stubBackend{}
	backend.signInFn = func(string, string) (*transport.SessionPayload, *transport.MFAChallenge, *transport.APIError) {
		return nil, nil, nil
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	if result.Error == nil || result.Error.Message != "email needs verification" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSignUpVerificationPending(t *testing.T) {
	backend := &stubBackend{}
	backend.signUpFn = func(string, string) (*transport.SessionPayload, *transport.APIError) {
		return nil, nil
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignUpEmailPassword(context.Background(), "a@b.c", "pw", nil)
	if err != nil {
		t.Fatalf("SignUpEmailPassword failed: %v", err)
	}
	if result.Session != nil || result.Error != nil {
		t.Fatalf("verification-pending sign-up must resolve empty, got %+v", result)
	}
	if client.IsAuthenticated() {
		t.Fatal("authenticated without tokens")
	}
}

func TestAutomaticRefreshNotifiesTokenListener(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	sessions := make(chan *Session, 8)
	unsubscribe := client.OnTokenChanged(func(s *Session) { sessions <- s })
	defer unsubscribe()

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}

	first := <-sessions
	if first == nil || first.AccessToken != "access-signin" {
		t.Fatalf("first notification %+v", first)
	}

	// 900s lifetime minus the 30s safety margin.
	clock.Advance(870 * time.Second)

	second := <-sessions
	if second == nil || second.AccessToken != "access-fresh" {
		t.Fatalf("refresh notification %+v", second)
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls %d, want 1", got)
	}
	if got := client.GetAccessToken(); got != "access-fresh" {
		t.Fatalf("GetAccessToken %q after refresh", got)
	}
}

func TestRejectedRefreshSignsOutWithCause(t *testing.T) {
	backend := &stubBackend{}
	adapter := storage.NewMemory()
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, adapter, clock)

	events := make(chan AuthStateEvent, 8)
	unsubscribe := client.OnAuthStateChanged(func(e AuthStateEvent) { events <- e })
	defer unsubscribe()

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	if e := <-events; e.State != StateSignedIn || e.Cause != CauseSignIn {
		t.Fatalf("sign-in event %+v", e)
	}

	backend.refreshFn = func(string) (*transport.SessionPayload, *transport.APIError) {
		return nil, &transport.APIError{Message: "token revoked", Status: 401}
	}
	clock.Advance(870 * time.Second)

	e := <-events
	if e.State != StateSignedOut || e.Cause != CauseRefreshRejected {
		t.Fatalf("rejection event %+v, want SIGNED_OUT/refresh_rejected", e)
	}
	if e.Session != nil {
		t.Fatalf("signed-out event carries a session: %+v", e.Session)
	}
	if client.IsAuthenticated() {
		t.Fatal("session survived a rejected refresh")
	}
	waitFor(t, func() bool {
		stored, _ := adapter.Get(context.Background(), storage.KeyRefreshToken)
		return stored == ""
	})
}

func TestBootstrapRestoresPersistedSession(t *testing.T) {
	backend := &stubBackend{}
	adapter := storage.NewMemory()
	if err := adapter.Set(context.Background(), storage.KeyRefreshToken, "stored-refresh"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, adapter, clock)

	authenticated, err := client.IsAuthenticatedAsync(context.Background())
	if err != nil {
		t.Fatalf("IsAuthenticatedAsync failed: %v", err)
	}
	if !authenticated {
		t.Fatal("persisted session not restored")
	}
	if got := client.GetAccessToken(); got != "access-fresh" {
		t.Fatalf("GetAccessToken %q after import", got)
	}
	if got := backend.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls %d, want 1", got)
	}
}

func TestSignOutDuringRefreshWins(t *testing.T) {
	backend := &stubBackend{}
	gate := make(chan struct{})
	backend.refreshFn = func(string) (*transport.SessionPayload, *transport.APIError) {
		<-gate
		return testSession("late"), nil
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}

	refreshDone := make(chan RefreshResult, 1)
	go func() {
		result, _ := client.RefreshSession(context.Background())
		refreshDone <- result
	}()
	waitFor(t, func() bool { return backend.refreshCalls.Load() == 1 })

	signOut, err := client.SignOut(context.Background())
	if err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if signOut.Error != nil {
		t.Fatalf("sign-out rejected: %+v", signOut.Error)
	}

	refresh := <-refreshDone
	if refresh.Error == nil || refresh.Error.Status != 401 {
		t.Fatalf("superseded refresh got %+v, want 401 unauthenticated", refresh)
	}

	close(gate)
	waitFor(t, func() bool { return backend.signOutCalls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if client.IsAuthenticated() || client.GetAccessToken() != "" {
		t.Fatal("stale refresh result resurrected the session")
	}
}

func TestSignOutWhileSignedOut(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	if _, err := client.IsAuthenticatedAsync(context.Background()); err != nil {
		t.Fatalf("IsAuthenticatedAsync failed: %v", err)
	}

	result, err := client.SignOut(context.Background())
	if err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if result.Error == nil || result.Error.Status != 401 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := backend.signOutCalls.Load(); got != 0 {
		t.Fatalf("network sign-out calls %d, want 0", got)
	}
}

func TestSignInDispatch(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignIn(context.Background(), SignInParams{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if result.Session == nil {
		t.Fatalf("password dispatch did not establish a session: %+v", result)
	}

	if _, err := client.SignIn(context.Background(), SignInParams{}); err != ErrSignInParamsInvalid {
		t.Fatalf("empty params got %v, want ErrSignInParamsInvalid", err)
	}

	provider, err := client.SignIn(context.Background(), SignInParams{Provider: "github"})
	if err != nil {
		t.Fatalf("provider dispatch failed: %v", err)
	}
	if provider.Error == nil || provider.Error.Status != 400 {
		t.Fatalf("provider dispatch %+v, want a redirect hint error", provider)
	}
}

func TestSignInPasswordlessSMSNotImplemented(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.SignInPasswordlessSMS(context.Background(), "+15550100", nil)
	if err != nil {
		t.Fatalf("SignInPasswordlessSMS failed: %v", err)
	}
	if result.Error == nil || result.Error.Status != 501 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	var notified atomic.Int64
	unsubscribe := client.OnTokenChanged(func(*Session) { notified.Add(1) })

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	waitFor(t, func() bool { return notified.Load() == 1 })

	unsubscribe()
	unsubscribe() // idempotent

	if _, err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := notified.Load(); got != 1 {
		t.Fatalf("listener fired %d times after unsubscribe, want 1", got)
	}
}

func TestChangePasswordUsesLiveToken(t *testing.T) {
	backend := &stubBackend{}
	var gotToken atomic.Value
	backend.actionFn = func(accessToken string) *transport.APIError {
		gotToken.Store(accessToken)
		return nil
	}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	// Unauthenticated: precondition failure without a network call.
	if _, err := client.IsAuthenticatedAsync(context.Background()); err != nil {
		t.Fatalf("IsAuthenticatedAsync failed: %v", err)
	}
	result, err := client.ChangePassword(context.Background(), "new-pw")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if result.Error == nil || result.Error.Status != 401 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := backend.actionCalls.Load(); got != 0 {
		t.Fatalf("action calls %d, want 0 while signed out", got)
	}

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	result, err = client.ChangePassword(context.Background(), "new-pw")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected failure: %+v", result.Error)
	}
	if got, _ := gotToken.Load().(string); got != "access-signin" {
		t.Fatalf("request used token %q, want access-signin", got)
	}
}

func TestResetPasswordWithoutSession(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	result, err := client.ResetPassword(context.Background(), "a@b.c", nil)
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if result.Error != nil {
		t.Fatalf("unexpected failure: %+v", result.Error)
	}
	if got := backend.actionCalls.Load(); got != 1 {
		t.Fatalf("action calls %d, want 1", got)
	}
}

func TestMetricsCountFlows(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	if _, err := client.SignInEmailPassword(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignInEmailPassword failed: %v", err)
	}
	if _, err := client.RefreshSession(context.Background()); err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if _, err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	snapshot := client.MetricsSnapshot()
	if got := snapshot.Counters[MetricSignInSuccess]; got != 1 {
		t.Fatalf("sign-in success %d, want 1", got)
	}
	if got := snapshot.Counters[MetricRefreshSuccess]; got != 1 {
		t.Fatalf("refresh success %d, want 1", got)
	}
	if got := snapshot.Counters[MetricSignOut]; got != 1 {
		t.Fatalf("sign-out %d, want 1", got)
	}
}

func TestProviderSignInURLFromConfig(t *testing.T) {
	backend := &stubBackend{}
	clock := NewFakeClock(testNow)
	client := buildTestClient(t, backend, nil, clock)

	u, err := client.ProviderSignInURL("github", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("ProviderSignInURL failed: %v", err)
	}
	want := "https://auth.example.com/v1/auth/signin/provider/github?redirectTo=https%3A%2F%2Fapp.example.com%2Fcb"
	if u != want {
		t.Fatalf("url %q, want %q", u, want)
	}
}
