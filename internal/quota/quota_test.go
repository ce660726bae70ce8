package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/repository"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]models.UsageRecord
	updates int
	failGet error
	failPut error
}

func newMemStore(records ...models.UsageRecord) *memStore {
	s := &memStore{records: make(map[string]models.UsageRecord)}
	for _, r := range records {
		s.records[r.Email] = r
	}
	return s
}

func (s *memStore) Get(_ context.Context, email string) (models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return models.UsageRecord{}, s.failGet
	}
	r, ok := s.records[email]
	if !ok {
		return models.UsageRecord{}, repository.ErrAccountNotFound
	}
	return r, nil
}

func (s *memStore) Update(_ context.Context, email string, fn func(*models.UsageRecord) error) (models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return models.UsageRecord{}, s.failPut
	}
	r, ok := s.records[email]
	if !ok {
		return models.UsageRecord{}, repository.ErrAccountNotFound
	}
	if err := fn(&r); err != nil {
		return models.UsageRecord{}, err
	}
	s.updates++
	s.records[email] = r
	return r, nil
}

func (s *memStore) EnsureExists(_ context.Context, record models.UsageRecord) (models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return models.UsageRecord{}, s.failPut
	}
	if r, ok := s.records[record.Email]; ok {
		return r, nil
	}
	s.records[record.Email] = record
	return record, nil
}

func (s *memStore) record(email string) models.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[email]
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestController(store Store) *Controller {
	return NewController(store, Limits{}, time.Second, zerolog.Nop()).WithClock(func() time.Time { return testNow })
}

func TestFreeTierAllowsSixUses(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := newTestController(store)

	if _, err := c.EnsureIdentity(ctx, "ana@example.com", "ana"); err != nil {
		t.Fatalf("EnsureIdentity() error = %v", err)
	}

	for i := 1; i <= DefaultFreeLimit; i++ {
		ok, err := c.CheckAllowed(ctx, "ana@example.com")
		if err != nil || !ok {
			t.Fatalf("use %d: CheckAllowed() = %v, %v", i, ok, err)
		}
		record, err := c.RecordUsage(ctx, "ana@example.com")
		if err != nil {
			t.Fatalf("use %d: RecordUsage() error = %v", i, err)
		}
		if record.FreeUsageCount != i {
			t.Fatalf("use %d: FreeUsageCount = %d", i, record.FreeUsageCount)
		}
	}

	ok, err := c.CheckAllowed(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("CheckAllowed() error = %v", err)
	}
	if ok {
		t.Fatal("seventh use allowed")
	}
	if _, err := c.RecordUsage(ctx, "ana@example.com"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("RecordUsage() error = %v, want ErrQuotaExceeded", err)
	}
	if got := store.record("ana@example.com").FreeUsageCount; got != DefaultFreeLimit {
		t.Errorf("FreeUsageCount = %d after rejected use, want %d", got, DefaultFreeLimit)
	}
}

func TestEnsureIdentityKeepsExistingRecord(t *testing.T) {
	store := newMemStore(models.UsageRecord{Email: "bo@example.com", DisplayName: "Bo", FreeUsageCount: 4})
	c := newTestController(store)

	record, err := c.EnsureIdentity(context.Background(), "bo@example.com", "someone else")
	if err != nil {
		t.Fatalf("EnsureIdentity() error = %v", err)
	}
	if record.FreeUsageCount != 4 || record.DisplayName != "Bo" {
		t.Errorf("record = %+v, want existing record untouched", record)
	}
}

func TestPremiumExpiryDemotes(t *testing.T) {
	expired := testNow.Add(-time.Minute)
	store := newMemStore(models.UsageRecord{
		Email:                 "cy@example.com",
		FreeUsageCount:        DefaultFreeLimit,
		PremiumUsageCount:     3,
		Premium:               true,
		SubscriptionExpiresAt: &expired,
	})
	c := newTestController(store)

	ok, err := c.CheckAllowed(context.Background(), "cy@example.com")
	if err != nil {
		t.Fatalf("CheckAllowed() error = %v", err)
	}
	if ok {
		t.Fatal("expired premium with exhausted free allowance was allowed")
	}

	record := store.record("cy@example.com")
	if record.Premium || record.SubscriptionExpiresAt != nil {
		t.Errorf("record = %+v, want demoted to free", record)
	}

	// demotion is idempotent: a second check writes nothing
	updates := store.updates
	if _, err := c.CheckAllowed(context.Background(), "cy@example.com"); err != nil {
		t.Fatalf("CheckAllowed() error = %v", err)
	}
	if store.updates != updates {
		t.Errorf("second check wrote %d updates", store.updates-updates)
	}
}

func TestPremiumExpiryFallsBackToFree(t *testing.T) {
	expired := testNow.Add(-time.Minute)
	store := newMemStore(models.UsageRecord{
		Email:                 "dee@example.com",
		FreeUsageCount:        2,
		PremiumUsageCount:     3,
		Premium:               true,
		SubscriptionExpiresAt: &expired,
	})
	c := newTestController(store)

	ok, err := c.CheckAllowed(context.Background(), "dee@example.com")
	if err != nil {
		t.Fatalf("CheckAllowed() error = %v", err)
	}
	if !ok {
		t.Fatal("expired premium with free uses left was refused")
	}

	record := store.record("dee@example.com")
	if record.Premium || record.SubscriptionExpiresAt != nil {
		t.Errorf("record = %+v, want demoted to free", record)
	}
	if record.PremiumUsageCount != 3 || record.FreeUsageCount != 2 {
		t.Errorf("counters = free %d premium %d, want 2 and 3", record.FreeUsageCount, record.PremiumUsageCount)
	}
}

func TestPremiumExpiryBoundary(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "no expiry", expiresAt: nil, want: true},
		{name: "expires exactly now", expiresAt: &testNow, want: true},
		{name: "expires later", expiresAt: ptr(testNow.Add(time.Hour)), want: true},
		{name: "expired", expiresAt: ptr(testNow.Add(-time.Nanosecond)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(models.UsageRecord{
				Email:                 "di@example.com",
				FreeUsageCount:        DefaultFreeLimit,
				Premium:               true,
				SubscriptionExpiresAt: tt.expiresAt,
			})
			ok, err := newTestController(store).CheckAllowed(context.Background(), "di@example.com")
			if err != nil {
				t.Fatalf("CheckAllowed() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("CheckAllowed() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestPremiumTierLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(models.UsageRecord{Email: "ed@example.com", FreeUsageCount: DefaultFreeLimit})
	c := newTestController(store)

	if _, err := c.Subscribe(ctx, "ed@example.com", testNow.Add(24*time.Hour)); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 1; i <= DefaultPremiumLimit; i++ {
		record, err := c.RecordUsage(ctx, "ed@example.com")
		if err != nil {
			t.Fatalf("use %d: RecordUsage() error = %v", i, err)
		}
		if record.PremiumUsageCount != i || record.FreeUsageCount != DefaultFreeLimit {
			t.Fatalf("use %d: record = %+v", i, record)
		}
	}

	ok, err := c.CheckAllowed(ctx, "ed@example.com")
	if err != nil || ok {
		t.Fatalf("CheckAllowed() = %v, %v after premium allowance used up", ok, err)
	}
	if store.record("ed@example.com").Premium {
		t.Error("premium not cleared after allowance used up")
	}

	record, err := c.Subscribe(ctx, "ed@example.com", testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !record.Premium || record.PremiumUsageCount != 0 {
		t.Errorf("record after renewal = %+v, want premium with a fresh allowance", record)
	}
}

func TestRecordUsageSerializesConcurrentRequests(t *testing.T) {
	store := newMemStore(models.UsageRecord{Email: "fa@example.com"})
	c := newTestController(store)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	charged, rejected := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.RecordUsage(context.Background(), "fa@example.com")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				charged++
			case errors.Is(err, ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("RecordUsage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if charged != DefaultFreeLimit || rejected != workers-DefaultFreeLimit {
		t.Errorf("charged = %d rejected = %d, want %d and %d", charged, rejected, DefaultFreeLimit, workers-DefaultFreeLimit)
	}
	if got := store.record("fa@example.com").FreeUsageCount; got != DefaultFreeLimit {
		t.Errorf("FreeUsageCount = %d, want %d", got, DefaultFreeLimit)
	}
}

func TestStoreFailuresFailClosed(t *testing.T) {
	down := errors.New("connection refused")
	store := newMemStore(models.UsageRecord{Email: "go@example.com"})
	c := newTestController(store)
	ctx := context.Background()

	store.failPut = down
	if _, err := c.RecordUsage(ctx, "go@example.com"); !errors.Is(err, ErrPersistence) || !errors.Is(err, down) {
		t.Errorf("RecordUsage() error = %v, want ErrPersistence wrapping the cause", err)
	}
	if _, err := c.EnsureIdentity(ctx, "new@example.com", "new"); !errors.Is(err, ErrPersistence) {
		t.Errorf("EnsureIdentity() error = %v, want ErrPersistence", err)
	}

	store.failGet = down
	ok, err := c.CheckAllowed(ctx, "go@example.com")
	if ok || !errors.Is(err, ErrPersistence) {
		t.Errorf("CheckAllowed() = %v, %v, want false and ErrPersistence", ok, err)
	}
	if _, err := c.Status(ctx, "go@example.com"); !errors.Is(err, ErrPersistence) {
		t.Errorf("Status() error = %v, want ErrPersistence", err)
	}
}

func TestUnknownAccount(t *testing.T) {
	c := newTestController(newMemStore())

	_, err := c.CheckAllowed(context.Background(), "nobody@example.com")
	if !errors.Is(err, repository.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
	if errors.Is(err, ErrPersistence) {
		t.Error("missing account reported as a store outage")
	}
}

func TestStatus(t *testing.T) {
	expires := testNow.Add(time.Hour)
	expired := testNow.Add(-time.Hour)

	tests := []struct {
		name   string
		record models.UsageRecord
		want   Status
	}{
		{
			name:   "free",
			record: models.UsageRecord{FreeUsageCount: 2},
			want:   Status{Tier: models.TierFree, Used: 2, Limit: 6, Remaining: 4},
		},
		{
			name:   "free overspent",
			record: models.UsageRecord{FreeUsageCount: 9},
			want:   Status{Tier: models.TierFree, Used: 9, Limit: 6, Remaining: 0},
		},
		{
			name:   "premium",
			record: models.UsageRecord{FreeUsageCount: 6, PremiumUsageCount: 5, Premium: true, SubscriptionExpiresAt: &expires},
			want:   Status{Tier: models.TierPremium, Used: 5, Limit: 20, Remaining: 15, ExpiresAt: &expires},
		},
		{
			name:   "lapsed premium reads as free",
			record: models.UsageRecord{FreeUsageCount: 1, PremiumUsageCount: 5, Premium: true, SubscriptionExpiresAt: &expired},
			want:   Status{Tier: models.TierFree, Used: 1, Limit: 6, Remaining: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.record.Email = "hu@example.com"
			got, err := newTestController(newMemStore(tt.record)).Status(context.Background(), "hu@example.com")
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if got.Tier != tt.want.Tier || got.Used != tt.want.Used || got.Limit != tt.want.Limit || got.Remaining != tt.want.Remaining {
				t.Errorf("Status() = %+v, want %+v", got, tt.want)
			}
			if (got.ExpiresAt == nil) != (tt.want.ExpiresAt == nil) {
				t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, tt.want.ExpiresAt)
			}
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
