package goSession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/store"
)

type fakeAccount struct {
	password string
	profile  Profile
}

// fakeIdentity is an in-memory identity server that counts every call.
type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	tokens   map[string]string
	calls    map[string]int
	seq      int

	issue      func() string
	profileErr error
	// profileEntered and profileRelease, when set, hold FetchProfile until
	// the test releases it. The request context is ignored so a completion
	// can arrive after the session ended.
	profileEntered chan struct{}
	profileRelease chan struct{}
}

func newFakeIdentity() *fakeIdentity {
	f := &fakeIdentity{
		accounts: make(map[string]*fakeAccount),
		tokens:   make(map[string]string),
		calls:    make(map[string]int),
	}
	f.addAccount("alice", "secret1", Profile{
		ID:         "42",
		Username:   "alice",
		Email:      "alice@example.com",
		Name:       "Alice",
		Permission: "CRU",
	})
	return f
}

func (f *fakeIdentity) addAccount(identifier, pw string, p Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[identifier] = &fakeAccount{password: pw, profile: p}
}

func (f *fakeIdentity) setPassword(identifier, pw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[identifier].password = pw
}

func (f *fakeIdentity) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]string)
}

func (f *fakeIdentity) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeIdentity) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeIdentity) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *fakeIdentity) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeIdentity) Login(_ context.Context, identifier, pw string) (string, error) {
	f.record("login")
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[identifier]
	if !ok || acct.password != pw {
		return "", ErrInvalidCredentials
	}
	f.seq++
	token := fmt.Sprintf("tok-%d", f.seq)
	if f.issue != nil {
		token = f.issue()
	}
	f.tokens[token] = identifier
	return token, nil
}

func (f *fakeIdentity) account(token string) (*fakeAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return nil, ErrTokenRejected
	}
	return f.accounts[id], nil
}

func (f *fakeIdentity) FetchProfile(ctx context.Context, token string) (Profile, error) {
	f.record("profile")
	f.mu.Lock()
	entered, release, perr := f.profileEntered, f.profileRelease, f.profileErr
	f.mu.Unlock()
	if release != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-release
	}
	if perr != nil {
		return Profile{}, perr
	}
	acct, err := f.account(token)
	if err != nil {
		return Profile{}, err
	}
	return *acct.profile.clone(), nil
}

func (f *fakeIdentity) Logout(context.Context, string) error {
	f.record("logout")
	return nil
}

func (f *fakeIdentity) UpdateProfile(_ context.Context, token string, fields ProfileUpdate) (Profile, error) {
	f.record("update")
	acct, err := f.account(token)
	if err != nil {
		return Profile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := fields["name"].(string); ok {
		acct.profile.Name = name
	}
	return *acct.profile.clone(), nil
}

func (f *fakeIdentity) ChangePassword(_ context.Context, token string, change PasswordChange) error {
	f.record("change_password")
	acct, err := f.account(token)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct.password != change.OldPassword {
		return &ServerError{Op: "change password", Status: 400, Message: "old password is incorrect", Kind: ErrRequestRejected}
	}
	acct.password = change.Password
	return nil
}

func (f *fakeIdentity) ForgotPassword(context.Context, string) error {
	f.record("forgot_password")
	return nil
}

func (f *fakeIdentity) VerifyResetToken(_ context.Context, resetToken string) error {
	f.record("verify_reset_token")
	if resetToken != "reset-ok" {
		return &ServerError{Op: "verify reset token", Status: 400, Kind: ErrRequestRejected}
	}
	return nil
}

func (f *fakeIdentity) ResetPassword(_ context.Context, reset PasswordReset) error {
	f.record("reset_password")
	if reset.Token != "reset-ok" {
		return &ServerError{Op: "reset password", Status: 400, Kind: ErrRequestRejected}
	}
	f.setPassword("alice", reset.Password)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Sync.Enabled = false
	return cfg
}

type harness struct {
	engine   *Engine
	backend  *store.MemoryBackend
	identity *fakeIdentity
	clock    *testClock
	cfg      Config
}

func newHarness(t testingT, mutate func(*Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		backend:  store.NewMemoryBackend(),
		identity: newFakeIdentity(),
		clock:    newTestClock(),
		cfg:      cfg,
	}
	h.engine = h.build(t)
	return h
}

// build returns a new engine over the harness backend, as after a restart.
func (h *harness) build(t testingT) *Engine {
	t.Helper()
	e, err := New().
		WithConfig(h.cfg).
		WithBackend(h.backend).
		WithIdentityClient(h.identity).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func (h *harness) creds() *store.Credentials {
	return store.NewCredentials(h.backend, h.cfg.Session.Namespace, nil)
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}

func newMemoryBackendForTest() *store.MemoryBackend {
	return store.NewMemoryBackend()
}
