package services

import (
	"context"
	"sync"
	"time"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fakeUserStore applies the same guards as the SQL in DefaultUserService, under a mutex.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	// beforeDecrement runs once ahead of the next decrement, standing in for a concurrent request.
	beforeDecrement func()
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		cp := *u
		f.users[u.ID] = &cp
	}
	return f
}

func (f *fakeUserStore) balance(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Credits
}

func (f *fakeUserStore) CreateOrGetUserDB(_ context.Context, id uuid.UUID, email string, initialCredits int, now time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		if email != "" {
			u.Email = models.OptionalEmail(email)
		}
		cp := *u
		return &cp, nil
	}
	u := &models.User{ID: id, Email: models.OptionalEmail(email), Plan: models.PlanFree, Credits: initialCredits, CreditsRenewedAt: now}
	f.users[id] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetUserDB(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) DecrementCreditsDB(_ context.Context, id uuid.UUID) (int64, error) {
	if hook := f.beforeDecrement; hook != nil {
		f.beforeDecrement = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Credits <= 0 {
		return 0, nil
	}
	u.Credits--
	return 1, nil
}

func (f *fakeUserStore) RenewCreditsDB(_ context.Context, id uuid.UUID, credits int, renewedAt, dueBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.Plan != models.PlanPremium || u.CreditsRenewedAt.After(dueBefore) {
		return 0, nil
	}
	u.Credits = credits
	u.CreditsRenewedAt = renewedAt
	return 1, nil
}

func (f *fakeUserStore) RenewDuePremiumUsersDB(_ context.Context, credits int, renewedAt, dueBefore time.Time) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var renewed []models.User
	for _, u := range f.users {
		if u.Plan == models.PlanPremium && !u.CreditsRenewedAt.After(dueBefore) {
			u.Credits = credits
			u.CreditsRenewedAt = renewedAt
			renewed = append(renewed, *u)
		}
	}
	return renewed, nil
}

func (f *fakeUserStore) UpgradeToPremiumDB(_ context.Context, id uuid.UUID, credits int, renewedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, nil
	}
	u.Plan = models.PlanPremium
	u.Credits = credits
	u.CreditsRenewedAt = renewedAt
	return 1, nil
}

func (f *fakeUserStore) SetCreditsDB(_ context.Context, id uuid.UUID, credits int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, nil
	}
	u.Credits = credits
	return 1, nil
}

func (f *fakeUserStore) DeleteUserDB(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return 0, nil
	}
	delete(f.users, id)
	return 1, nil
}

// fakeDessertStore charges through the shared user store, like the transaction in DefaultDessertService.
type fakeDessertStore struct {
	mu        sync.Mutex
	users     *fakeUserStore
	desserts  map[uuid.UUID]models.Dessert
	byKey     map[string]uuid.UUID
	recordErr error
}

func newFakeDessertStore(users *fakeUserStore) *fakeDessertStore {
	return &fakeDessertStore{
		users:    users,
		desserts: make(map[uuid.UUID]models.Dessert),
		byKey:    make(map[string]uuid.UUID),
	}
}

func (f *fakeDessertStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.desserts)
}

func (f *fakeDessertStore) add(d models.Dessert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desserts[d.ID] = d
}

func (f *fakeDessertStore) RecordGenerationDB(ctx context.Context, dessert *models.Dessert) (bool, bool, error) {
	if f.recordErr != nil {
		return false, false, f.recordErr
	}
	charged, _ := f.users.DecrementCreditsDB(ctx, dessert.UserID)
	if charged == 0 {
		return false, false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if dessert.CacheKey != nil {
		if _, exists := f.byKey[*dessert.CacheKey]; exists {
			return true, false, nil
		}
		f.byKey[*dessert.CacheKey] = dessert.ID
	}
	f.desserts[dessert.ID] = *dessert
	return true, true, nil
}

func (f *fakeDessertStore) GetDessertDB(_ context.Context, id uuid.UUID) (*models.Dessert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.desserts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (f *fakeDessertStore) ListDessertsDB(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Dessert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []models.Dessert
	for _, d := range f.desserts {
		if d.UserID == userID {
			owned = append(owned, d)
		}
	}
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], total, nil
}

func (f *fakeDessertStore) DeleteDessertDB(_ context.Context, id, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.desserts[id]
	if !ok || d.UserID != userID {
		return 0, nil
	}
	delete(f.desserts, id)
	return 1, nil
}

type fakeCacheStore struct {
	mu        sync.Mutex
	entries   map[string]models.CacheEntry
	getErr    error
	upsertErr error
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[string]models.CacheEntry)}
}

func (f *fakeCacheStore) hits(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key].Hits
}

func (f *fakeCacheStore) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeCacheStore) GetCacheEntryDB(_ context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entries[key]
	if !ok || !e.ExpiresAt.After(now) {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (f *fakeCacheStore) UpsertCacheEntryDB(_ context.Context, key string, payload []byte, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	e := f.entries[key]
	e.Key = key
	e.Payload = datatypes.JSON(payload)
	e.ExpiresAt = expiresAt
	f.entries[key] = e
	return nil
}

func (f *fakeCacheStore) IncrementCacheHitsDB(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Hits++
	f.entries[key] = e
	return nil
}

func (f *fakeCacheStore) DeleteCacheEntryDB(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeCacheStore) DeleteExpiredCacheEntriesDB(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, e := range f.entries {
		if e.ExpiresAt.Before(now) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

type fakeUsageStore struct {
	mu        sync.Mutex
	logs      []models.UsageLog
	appendErr error
}

func (f *fakeUsageStore) entries() []models.UsageLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.UsageLog, len(f.logs))
	copy(out, f.logs)
	return out
}

func (f *fakeUsageStore) AppendUsageLogDB(_ context.Context, entry *models.UsageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	entry.ID = uint(len(f.logs) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeUsageStore) ListUsageLogsDB(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.UsageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []models.UsageLog
	for i := len(f.logs) - 1; i >= 0; i-- {
		if f.logs[i].UserID == userID {
			owned = append(owned, f.logs[i])
		}
	}
	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (f *fakeUsageStore) DeleteUsageLogsBeforeDB(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.logs[:0]
	var n int64
	for _, l := range f.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	f.logs = kept
	return n, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
