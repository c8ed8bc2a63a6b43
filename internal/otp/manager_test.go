package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "auth-lifecycle-engine/internal/audit/domain"
	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp/repository"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	calls int
}

func (d *fakeDispatcher) Send(_ context.Context, _ string, _ delivery.Channel, body string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fail != nil {
		return "", d.fail
	}
	d.sent = append(d.sent, body)
	return "msg-1", nil
}

func (d *fakeDispatcher) lastBody() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return ""
	}
	return d.sent[len(d.sent)-1]
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []auditdomain.Action
	blocked []bool
}

func (r *fakeRecorder) Record(_ context.Context, _ string, action auditdomain.Action, _ string, blocked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.blocked = append(r.blocked, blocked)
}

func (r *fakeRecorder) has(action auditdomain.Action) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

const testDest = "+31612345678"

func newTestManager(t *testing.T, cfg Config) (*Manager, *repository.MemoryRepository, *DevStore) {
	t.Helper()
	if cfg.HashSecret == "" {
		cfg.HashSecret = "test-secret"
	}
	repo := repository.NewMemoryRepository()
	dev := NewDevStore()
	m := NewManager(repo, nil, nil, dev, nil, nil, cfg)
	return m, repo, dev
}

// wrongCode returns a well-formed code guaranteed to differ from code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func TestRequestChallenge(t *testing.T) {
	m, _, dev := newTestManager(t, Config{})
	ctx := context.Background()

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "user-1")
	if err != nil {
		t.Fatalf("RequestChallenge: %v", err)
	}
	if c.AttemptCount != 0 || c.MaxAttempts != 5 {
		t.Errorf("attempt budget = %d/%d, want 0/5", c.AttemptCount, c.MaxAttempts)
	}
	if got := c.ExpiresAt.Sub(c.CreatedAt); got != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", got)
	}
	code, ok := dev.Get(c.ID)
	if !ok {
		t.Fatal("dev store has no code for the challenge")
	}
	if len(code) != 6 {
		t.Errorf("code %q, want 6 digits", code)
	}
}

func TestRequestChallengeInvalidDestination(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	if _, err := m.RequestChallenge(context.Background(), "not-a-number", delivery.ChannelSMS, ""); !errors.Is(err, delivery.ErrInvalidDestination) {
		t.Fatalf("err = %v, want ErrInvalidDestination", err)
	}
}

func TestRequestChallengeSupersedes(t *testing.T) {
	m, repo, dev := newTestManager(t, Config{})
	ctx := context.Background()

	c1, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	code1 := mustDevCode(t, dev, c1.ID)

	c2, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if c2.ID == c1.ID {
		t.Fatal("second request returned the same challenge")
	}

	active, err := repo.GetActive(ctx, testDest, delivery.ChannelSMS)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != c2.ID {
		t.Fatalf("active challenge = %+v, want %s", active, c2.ID)
	}

	// The superseded challenge can no longer be charged.
	if charged, _ := repo.ChargeAttempt(ctx, c1.ID); charged != nil {
		t.Error("superseded challenge still accepts attempts")
	}

	// The old code addresses dead state: NotFound, and the replacement's attempt
	// budget is untouched.
	if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale code err = %v, want ErrNotFound", err)
	}
	active, err = repo.GetActive(ctx, testDest, delivery.ChannelSMS)
	if err != nil {
		t.Fatal(err)
	}
	if active.AttemptCount != 0 {
		t.Errorf("attempt count after stale code = %d, want 0", active.AttemptCount)
	}

	// Spend attempts on c2, then supersede again and confirm the replacement starts
	// with a full budget.
	bad := wrongCode(mustDevCode(t, dev, c2.ID))
	for i := 0; i < 2; i++ {
		if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, bad); err == nil {
			t.Fatal("wrong code verified")
		}
	}
	c3, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatalf("third request: %v", err)
	}
	if c3.AttemptCount != 0 {
		t.Errorf("fresh challenge attempt count = %d, want 0", c3.AttemptCount)
	}
}

func mustDevCode(t *testing.T, dev *DevStore, id string) string {
	t.Helper()
	code, ok := dev.Get(id)
	if !ok {
		t.Fatalf("no dev code for challenge %s", id)
	}
	return code
}

func TestVerifyChallengeSuccess(t *testing.T) {
	m, _, dev := newTestManager(t, Config{})
	ctx := context.Background()

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelWhatsApp, "user-7")
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelWhatsApp, mustDevCode(t, dev, c.ID))
	if err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	if res.ChallengeID != c.ID || res.UserID != "user-7" {
		t.Errorf("result = %+v", res)
	}

	// Consumed challenges are gone for good.
	if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelWhatsApp, mustDevCode(t, dev, c.ID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second verify err = %v, want ErrNotFound", err)
	}
}

func TestVerifyChallengeMalformedCode(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	if _, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, ""); err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code); !errors.Is(err, ErrMalformedCode) {
			t.Errorf("code %q: err = %v, want ErrMalformedCode", code, err)
		}
	}
}

func TestVerifyChallengeNoChallenge(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	if _, err := m.VerifyChallenge(context.Background(), testDest, delivery.ChannelSMS, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyChallengeAttemptBudget(t *testing.T) {
	m, _, dev := newTestManager(t, Config{})
	ctx := context.Background()

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatal(err)
	}
	code := mustDevCode(t, dev, c.ID)
	bad := wrongCode(code)

	for i := 1; i <= 5; i++ {
		_, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, bad)
		var ice *InvalidCodeError
		if !errors.As(err, &ice) {
			t.Fatalf("attempt %d: err = %v, want InvalidCodeError", i, err)
		}
		if want := 5 - i; ice.AttemptsRemaining != want {
			t.Errorf("attempt %d: remaining = %d, want %d", i, ice.AttemptsRemaining, want)
		}
	}

	// The budget is spent; even the right code is rejected now.
	if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code); !errors.Is(err, ErrExhausted) {
		t.Fatalf("post-exhaustion err = %v, want ErrExhausted", err)
	}
}

func TestVerifyChallengeExpiry(t *testing.T) {
	m, _, dev := newTestManager(t, Config{})
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	m.nowF = func() time.Time { return now }
	dev.nowF = m.nowF

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatal(err)
	}
	code := mustDevCode(t, dev, c.ID)

	now = start.Add(10*time.Minute - time.Second)
	if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code); err != nil {
		t.Fatalf("verify just inside ttl: %v", err)
	}

	// Fresh challenge, then step past the deadline.
	now = start
	c2, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatal(err)
	}
	code2 := mustDevCode(t, dev, c2.ID)
	now = start.Add(10*time.Minute + time.Second)
	if _, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code2); !errors.Is(err, ErrExpired) {
		t.Fatalf("verify past ttl err = %v, want ErrExpired", err)
	}
}

func TestRequestChallengeRateLimited(t *testing.T) {
	rec := &fakeRecorder{}
	repo := repository.NewMemoryRepository()
	m := NewManager(repo, nil, rec, NewDevStore(), nil, nil, Config{
		HashSecret:        "test-secret",
		RequestsPerWindow: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, ""); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if _, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if !rec.has(auditdomain.ActionSignupBlocked) {
		t.Error("rate-limited request was not audited as blocked")
	}

	// Other destinations are unaffected.
	if _, err := m.RequestChallenge(ctx, "+31687654321", delivery.ChannelSMS, ""); err != nil {
		t.Fatalf("unrelated destination: %v", err)
	}
}

func TestRequestChallengeDeliveryFailure(t *testing.T) {
	repo := repository.NewMemoryRepository()
	disp := &fakeDispatcher{fail: delivery.Transient(errors.New("gateway timeout"))}
	m := NewManager(repo, disp, nil, nil, nil, nil, Config{HashSecret: "test-secret"})
	ctx := context.Background()

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if c == nil {
		t.Fatal("challenge dropped on delivery failure")
	}

	// The committed challenge still verifies once the code reaches the user by
	// other means.
	disp.fail = nil
	c2, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, disp.lastBody())
	if err != nil {
		t.Fatalf("verify delivered code: %v", err)
	}
	if res.ChallengeID != c2.ID {
		t.Errorf("verified challenge %s, want %s", res.ChallengeID, c2.ID)
	}
}

func TestVerifyChallengeSingleConsumer(t *testing.T) {
	m, _, dev := newTestManager(t, Config{MaxAttempts: 50})
	ctx := context.Background()

	c, err := m.RequestChallenge(ctx, testDest, delivery.ChannelSMS, "")
	if err != nil {
		t.Fatal(err)
	}
	code := mustDevCode(t, dev, c.ID)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.VerifyChallenge(ctx, testDest, delivery.ChannelSMS, code)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("%d concurrent verifies succeeded, want exactly 1", wins)
	}
}
