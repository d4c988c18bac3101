package impl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"palcro/internal/domain"
	"palcro/internal/dto"
	"palcro/internal/events"
	"palcro/internal/service"
	"palcro/internal/store"
)

type memoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]*domain.LicenseKey
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{keys: make(map[string]*domain.LicenseKey)}
}

func (m *memoryKeyStore) Create(ctx context.Context, key *domain.LicenseKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.Secret]; ok {
		return store.ErrDuplicateSecret
	}
	copy := *key
	m.keys[key.Secret] = &copy
	return nil
}

func (m *memoryKeyStore) GetBySecret(ctx context.Context, secret string) (*domain.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[secret]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	copy := *key
	return &copy, nil
}

// BindHardware mirrors the real store's compare-and-set: the mutex stands in
// for the database's row-level atomicity.
func (m *memoryKeyStore) BindHardware(ctx context.Context, secret, hwid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[secret]
	if !ok {
		return store.ErrRecordNotFound
	}
	if key.HardwareID != nil {
		return store.ErrAlreadyBound
	}
	h := hwid
	key.HardwareID = &h
	return nil
}

func (m *memoryKeyStore) Revoke(ctx context.Context, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[secret]; !ok {
		return store.ErrRecordNotFound
	}
	delete(m.keys, secret)
	return nil
}

func (m *memoryKeyStore) boundHardware(secret string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[secret]
	if !ok || key.HardwareID == nil {
		return "", false
	}
	return *key.HardwareID, true
}

// stubKeyStore scripts individual calls, for failure paths the memory store
// can't produce.
type stubKeyStore struct {
	createFunc func(key *domain.LicenseKey) error
	getFunc    func(secret string) (*domain.LicenseKey, error)
	bindFunc   func(secret, hwid string) error
	revokeFunc func(secret string) error

	createCalls int
}

func (s *stubKeyStore) Create(ctx context.Context, key *domain.LicenseKey) error {
	s.createCalls++
	if s.createFunc != nil {
		return s.createFunc(key)
	}
	return nil
}

func (s *stubKeyStore) GetBySecret(ctx context.Context, secret string) (*domain.LicenseKey, error) {
	if s.getFunc != nil {
		return s.getFunc(secret)
	}
	return nil, store.ErrRecordNotFound
}

func (s *stubKeyStore) BindHardware(ctx context.Context, secret, hwid string) error {
	if s.bindFunc != nil {
		return s.bindFunc(secret, hwid)
	}
	return nil
}

func (s *stubKeyStore) Revoke(ctx context.Context, secret string) error {
	if s.revokeFunc != nil {
		return s.revokeFunc(secret)
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	issued []events.KeyIssued
	bound  []events.KeyBound
}

func (n *recordingNotifier) KeyIssued(ev events.KeyIssued) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.issued = append(n.issued, ev)
}

func (n *recordingNotifier) KeyBound(ev events.KeyBound) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bound = append(n.bound, ev)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.issued), len(n.bound)
}

func newTestService(st keyStore) (*LicenseServiceImpl, *recordingNotifier) {
	notifier := &recordingNotifier{}
	svc := &LicenseServiceImpl{Store: st, Notifier: notifier, Script: "print('ok')"}
	return svc, notifier
}

func seed(t *testing.T, mem *memoryKeyStore, secret string, hwid *string, expiresAt time.Time) {
	t.Helper()
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.keys[secret] = &domain.LicenseKey{Secret: secret, HardwareID: hwid, ExpiresAt: expiresAt}
}

func strptr(s string) *string { return &s }

func TestIssueDefaultsToSevenDays(t *testing.T) {
	mem := newMemoryKeyStore()
	svc, notifier := newTestService(mem)

	before := time.Now().UTC()
	res, err := svc.Issue(context.Background(), dto.IssueRequest{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(res.Key) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%q)", len(res.Key), res.Key)
	}

	want := before.Add(DefaultValidity)
	if res.ExpiresAt.Before(want.Add(-time.Minute)) || res.ExpiresAt.After(want.Add(time.Minute)) {
		t.Fatalf("expiry not ~7d out: %v", res.ExpiresAt)
	}

	stored, err := mem.GetBySecret(context.Background(), res.Key)
	if err != nil {
		t.Fatalf("issued key not persisted: %v", err)
	}
	if stored.HardwareID != nil {
		t.Fatalf("issued key must start unbound")
	}

	issued, bound := notifier.counts()
	if issued != 1 || bound != 0 {
		t.Fatalf("expected 1 issued / 0 bound notifications, got %d/%d", issued, bound)
	}
}

func TestIssueHonorsRequestedValidity(t *testing.T) {
	mem := newMemoryKeyStore()
	svc, _ := newTestService(mem)

	before := time.Now().UTC()
	res, err := svc.Issue(context.Background(), dto.IssueRequest{ValiditySeconds: 3600})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	want := before.Add(time.Hour)
	if res.ExpiresAt.Before(want.Add(-time.Minute)) || res.ExpiresAt.After(want.Add(time.Minute)) {
		t.Fatalf("expiry not ~1h out: %v", res.ExpiresAt)
	}
}

func TestIssueRejectsNegativeValidity(t *testing.T) {
	svc, _ := newTestService(newMemoryKeyStore())
	if _, err := svc.Issue(context.Background(), dto.IssueRequest{ValiditySeconds: -1}); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	st := &stubKeyStore{}
	st.createFunc = func(key *domain.LicenseKey) error {
		if st.createCalls < 3 {
			return store.ErrDuplicateSecret
		}
		return nil
	}
	svc, _ := newTestService(st)

	if _, err := svc.Issue(context.Background(), dto.IssueRequest{}); err != nil {
		t.Fatalf("issue should survive collisions: %v", err)
	}
	if st.createCalls != 3 {
		t.Fatalf("expected 3 create attempts, got %d", st.createCalls)
	}
}

func TestIssueExhaustsRetries(t *testing.T) {
	st := &stubKeyStore{createFunc: func(*domain.LicenseKey) error { return store.ErrDuplicateSecret }}
	svc, notifier := newTestService(st)

	_, err := svc.Issue(context.Background(), dto.IssueRequest{})
	if !errors.Is(err, service.ErrIssueRetriesExhausted) {
		t.Fatalf("expected ErrIssueRetriesExhausted, got %v", err)
	}
	if st.createCalls != maxGenerateAttempts {
		t.Fatalf("expected %d attempts, got %d", maxGenerateAttempts, st.createCalls)
	}
	if issued, _ := notifier.counts(); issued != 0 {
		t.Fatalf("no notification expected on failed issuance")
	}
}

func TestIssuePropagatesStorageError(t *testing.T) {
	boom := errors.New("connection lost")
	st := &stubKeyStore{createFunc: func(*domain.LicenseKey) error { return boom }}
	svc, _ := newTestService(st)

	if _, err := svc.Issue(context.Background(), dto.IssueRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected storage error to propagate, got %v", err)
	}
}

func TestValidateStateMachine(t *testing.T) {
	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	cases := []struct {
		name       string
		seed       func(t *testing.T, mem *memoryKeyStore)
		req        dto.ValidateRequest
		granted    bool
		reason     string
		wantsBound *string
	}{
		{
			name:    "unknown key",
			seed:    func(t *testing.T, mem *memoryKeyStore) {},
			req:     dto.ValidateRequest{Key: "nope", HardwareID: "HW-A"},
			granted: false,
			reason:  dto.ReasonNotFound,
		},
		{
			name: "expired unbound",
			seed: func(t *testing.T, mem *memoryKeyStore) {
				seed(t, mem, "k", nil, past)
			},
			req:     dto.ValidateRequest{Key: "k", HardwareID: "HW-A"},
			granted: false,
			reason:  dto.ReasonExpired,
		},
		{
			name: "expired bound ignores binding state",
			seed: func(t *testing.T, mem *memoryKeyStore) {
				seed(t, mem, "k", strptr("HW-A"), past)
			},
			req:     dto.ValidateRequest{Key: "k", HardwareID: "HW-A"},
			granted: false,
			reason:  dto.ReasonExpired,
		},
		{
			name: "first use binds",
			seed: func(t *testing.T, mem *memoryKeyStore) {
				seed(t, mem, "k", nil, future)
			},
			req:        dto.ValidateRequest{Key: "k", HardwareID: "HW-A"},
			granted:    true,
			wantsBound: strptr("HW-A"),
		},
		{
			name: "matching bound hardware",
			seed: func(t *testing.T, mem *memoryKeyStore) {
				seed(t, mem, "k", strptr("HW-A"), future)
			},
			req:        dto.ValidateRequest{Key: "k", HardwareID: "HW-A"},
			granted:    true,
			wantsBound: strptr("HW-A"),
		},
		{
			name: "mismatched bound hardware",
			seed: func(t *testing.T, mem *memoryKeyStore) {
				seed(t, mem, "k", strptr("HW-A"), future)
			},
			req:        dto.ValidateRequest{Key: "k", HardwareID: "HW-B"},
			granted:    false,
			reason:     dto.ReasonHardwareMismatch,
			wantsBound: strptr("HW-A"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem := newMemoryKeyStore()
			tc.seed(t, mem)
			svc, _ := newTestService(mem)

			res, err := svc.Validate(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.Granted != tc.granted {
				t.Fatalf("granted = %v, want %v (reason %q)", res.Granted, tc.granted, res.Reason)
			}
			if !tc.granted && res.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", res.Reason, tc.reason)
			}
			if tc.granted && res.Script == "" {
				t.Fatalf("granted response missing script payload")
			}
			if tc.wantsBound != nil {
				hw, ok := mem.boundHardware(tc.req.Key)
				if !ok || hw != *tc.wantsBound {
					t.Fatalf("stored binding = %q (%v), want %q", hw, ok, *tc.wantsBound)
				}
			}
		})
	}
}

func TestValidateRequiresKeyAndHardwareID(t *testing.T) {
	svc, _ := newTestService(newMemoryKeyStore())
	for _, req := range []dto.ValidateRequest{
		{Key: "", HardwareID: "HW-A"},
		{Key: "k", HardwareID: ""},
	} {
		if _, err := svc.Validate(context.Background(), req); !errors.Is(err, service.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestValidateRepeatedUseIsIdempotent(t *testing.T) {
	mem := newMemoryKeyStore()
	seed(t, mem, "k", nil, time.Now().UTC().Add(time.Hour))
	svc, notifier := newTestService(mem)

	for i := 0; i < 5; i++ {
		res, err := svc.Validate(context.Background(), dto.ValidateRequest{Key: "k", HardwareID: "HW-A"})
		if err != nil {
			t.Fatalf("validate %d: %v", i, err)
		}
		if !res.Granted {
			t.Fatalf("validate %d denied: %s", i, res.Reason)
		}
	}

	if _, bound := notifier.counts(); bound != 1 {
		t.Fatalf("bind notification should fire exactly once, got %d", bound)
	}
	if hw, _ := mem.boundHardware("k"); hw != "HW-A" {
		t.Fatalf("binding drifted to %q", hw)
	}
}

func TestValidateConcurrentFirstUse(t *testing.T) {
	const n = 64

	mem := newMemoryKeyStore()
	seed(t, mem, "contested", nil, time.Now().UTC().Add(time.Hour))
	svc, notifier := newTestService(mem)

	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		mu      sync.Mutex
		granted []string
		denied  int
	)
	release := make(chan struct{})

	start.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func(hwid string) {
			defer done.Done()
			start.Done()
			<-release

			res, err := svc.Validate(context.Background(), dto.ValidateRequest{Key: "contested", HardwareID: hwid})
			if err != nil {
				t.Errorf("validate %s: %v", hwid, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Granted {
				granted = append(granted, hwid)
			} else {
				if res.Reason != dto.ReasonHardwareMismatch {
					t.Errorf("loser saw %q, want %q", res.Reason, dto.ReasonHardwareMismatch)
				}
				denied++
			}
		}(fmt.Sprintf("HW-%03d", i))
	}

	start.Wait()
	close(release)
	done.Wait()

	if len(granted) != 1 {
		t.Fatalf("exactly one caller must win the bind, got %d (%v)", len(granted), granted)
	}
	if denied != n-1 {
		t.Fatalf("expected %d mismatch denials, got %d", n-1, denied)
	}

	winner, ok := mem.boundHardware("contested")
	if !ok || winner != granted[0] {
		t.Fatalf("stored binding %q does not match winner %q", winner, granted[0])
	}
	if _, bound := notifier.counts(); bound != 1 {
		t.Fatalf("bind notification should fire exactly once, got %d", bound)
	}
}

func TestValidateLostRaceFallsThroughToComparison(t *testing.T) {
	// Script the interleaving the memory store can't force: the read sees an
	// unbound key, the bind loses, the re-read shows the winner.
	winner := strptr("HW-WINNER")
	reads := 0
	st := &stubKeyStore{
		getFunc: func(secret string) (*domain.LicenseKey, error) {
			reads++
			if reads == 1 {
				return &domain.LicenseKey{Secret: secret, ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
			}
			return &domain.LicenseKey{Secret: secret, HardwareID: winner, ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
		},
		bindFunc: func(secret, hwid string) error { return store.ErrAlreadyBound },
	}
	svc, notifier := newTestService(st)

	res, err := svc.Validate(context.Background(), dto.ValidateRequest{Key: "k", HardwareID: "HW-LOSER"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Granted || res.Reason != dto.ReasonHardwareMismatch {
		t.Fatalf("lost race should deny with mismatch, got %+v", res)
	}
	if reads != 2 {
		t.Fatalf("expected re-read after lost race, got %d reads", reads)
	}
	if _, bound := notifier.counts(); bound != 0 {
		t.Fatalf("loser must not emit a bind notification")
	}
}

func TestValidatePropagatesStorageError(t *testing.T) {
	boom := errors.New("timeout")
	st := &stubKeyStore{getFunc: func(string) (*domain.LicenseKey, error) { return nil, boom }}
	svc, _ := newTestService(st)

	res, err := svc.Validate(context.Background(), dto.ValidateRequest{Key: "k", HardwareID: "HW-A"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got res=%+v err=%v", res, err)
	}
	if res != nil {
		t.Fatalf("storage failure must not produce a decision, got %+v", res)
	}
}

func TestRevoke(t *testing.T) {
	mem := newMemoryKeyStore()
	seed(t, mem, "k", strptr("HW-A"), time.Now().UTC().Add(time.Hour))
	svc, _ := newTestService(mem)

	if err := svc.Revoke(context.Background(), "k"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	res, err := svc.Validate(context.Background(), dto.ValidateRequest{Key: "k", HardwareID: "HW-A"})
	if err != nil {
		t.Fatalf("validate after revoke: %v", err)
	}
	if res.Granted || res.Reason != dto.ReasonNotFound {
		t.Fatalf("revoked key should deny as not_found, got %+v", res)
	}

	if err := svc.Revoke(context.Background(), "k"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("second revoke should be ErrKeyNotFound, got %v", err)
	}
	if err := svc.Revoke(context.Background(), ""); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("empty key should be ErrInvalidRequest, got %v", err)
	}
}
