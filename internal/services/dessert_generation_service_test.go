package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dessert_generator_go_backend/internal/models"
	"dessert_generator_go_backend/internal/utils/broker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type generationFixture struct {
	svc      *DessertGenerationService
	gen      *MockDessertGenerator
	users    *fakeUserStore
	desserts *fakeDessertStore
	store    *fakeCacheStore
	usage    *fakeUsageStore
	progress *broker.Broker
	user     *models.User
}

func newGenerationFixture(t *testing.T, credits int) *generationFixture {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	user := &models.User{ID: uuid.New(), Email: models.OptionalEmail("ana@example.com"), Plan: models.PlanFree, Credits: credits, CreditsRenewedAt: clock.Now()}

	users := newFakeUserStore(user)
	usage := &fakeUsageStore{}
	credit := newTestCreditService(users, usage, clock)
	store := newFakeCacheStore()
	cache := NewTwoTierCache(NewLRUMemoryTier(16, time.Hour, clock.Now), store, 24*time.Hour, WithCacheClock(clock.Now))
	desserts := newFakeDessertStore(users)
	gen := new(MockDessertGenerator)
	progress := broker.NewBroker(32)

	svc := NewDessertGenerationService(
		NewIngredientValidator(500, nil),
		credit,
		cache,
		gen,
		desserts,
		usage,
		progress,
		GenerationConfig{Timeout: time.Second, CacheTTL: 24 * time.Hour},
		zerolog.Nop(),
		nil,
	)
	return &generationFixture{
		svc:      svc,
		gen:      gen,
		users:    users,
		desserts: desserts,
		store:    store,
		usage:    usage,
		progress: progress,
		user:     user,
	}
}

func (f *generationFixture) request(ingredients string) GenerateRequest {
	return GenerateRequest{UserID: f.user.ID, Ingredients: ingredients, Theme: models.ThemeFeminine}
}

func sampleGenerated() *GeneratedDessert {
	return &GeneratedDessert{
		Recipe: models.Recipe{
			Name:        "Mousse de Chocolate com Morango",
			Ingredients: []string{"chocolate", "morango", "creme de leite"},
			Steps:       []string{"derreta o chocolate", "misture o creme", "sirva com morangos"},
		},
		ImageURL: "https://img.example/mousse.png",
	}
}

func TestGenerate_ChargesOnceThenServesFromCache(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 3)
	f.gen.On("GenerateDessert", mock.Anything, "morango, chocolate", models.ThemeFeminine, "pt").
		Return(sampleGenerated(), nil).Once()

	first := f.svc.Generate(ctx, f.request("morango, chocolate"))
	require.True(t, first.Success, first.Message)
	assert.False(t, first.FromCache)
	assert.Equal(t, "Mousse de Chocolate com Morango", first.Recipe.Name)
	assert.Equal(t, "https://img.example/mousse.png", first.Image)
	assert.Equal(t, 2, f.users.balance(f.user.ID))

	// Same list in another order and case resolves to the same key.
	second := f.svc.Generate(ctx, f.request("Chocolate,  morango"))
	require.True(t, second.Success, second.Message)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Recipe, second.Recipe)
	assert.Equal(t, 1, f.users.balance(f.user.ID))

	assert.Equal(t, 1, f.desserts.count())
	assert.Equal(t, 1, f.store.size())
	f.gen.AssertExpectations(t)

	logs := f.usage.entries()
	require.Len(t, logs, 2)
	details, err := logs[1].DecodeDetails()
	require.NoError(t, err)
	gd, ok := details.(*models.GenerationDetails)
	require.True(t, ok)
	assert.True(t, gd.FromCache)
	assert.Equal(t, 1, logs[1].CreditsUsed)
}

func TestGenerate_NoCredits(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 0)

	resp := f.svc.Generate(ctx, f.request("morango, chocolate"))

	assert.False(t, resp.Success)
	assert.Equal(t, ErrorTypeCredits, resp.ErrorType)
	assert.ErrorIs(t, resp.Err, ErrInsufficientCredits)
	assert.Equal(t, 0, f.desserts.count())
	assert.Equal(t, 0, f.store.size())
	f.gen.AssertNotCalled(t, "GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked term costs nothing", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		resp := f.svc.Generate(ctx, f.request("farinha, glue, açúcar"))

		assert.False(t, resp.Success)
		assert.True(t, resp.Blocked)
		assert.Equal(t, messageNotFood, resp.Message)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
		assert.Empty(t, f.usage.entries())
		f.gen.AssertNotCalled(t, "GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("blocked term inside a food word passes", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		f.gen.On("GenerateDessert", mock.Anything, "chocolate", models.ThemeFeminine, "pt").
			Return(sampleGenerated(), nil).Once()

		resp := f.svc.Generate(ctx, f.request("chocolate"))
		assert.True(t, resp.Success)
		assert.False(t, resp.Blocked)
	})

	t.Run("empty input", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		resp := f.svc.Generate(ctx, f.request("   "))

		assert.False(t, resp.Success)
		assert.False(t, resp.Blocked)
		assert.NotEmpty(t, resp.Message)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
	})

	t.Run("unknown theme", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		req := f.request("morango")
		req.Theme = "rustic"
		resp := f.svc.Generate(ctx, req)

		var verr *ValidationError
		assert.ErrorAs(t, resp.Err, &verr)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
	})

	t.Run("bad language code", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		req := f.request("morango")
		req.Language = "pt_BR; drop"
		resp := f.svc.Generate(ctx, req)

		var verr *ValidationError
		assert.ErrorAs(t, resp.Err, &verr)
	})
}

func TestGenerate_UpstreamFailuresCostNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("rate limited", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: recipe: quota", ErrUpstreamRateLimited))

		resp := f.svc.Generate(ctx, f.request("morango"))

		assert.False(t, resp.Success)
		assert.Equal(t, ErrorTypeRateLimit, resp.ErrorType)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
		assert.Equal(t, 0, f.store.size())
		assert.Equal(t, 0, f.desserts.count())
	})

	t.Run("generic failure", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: image: boom", ErrUpstreamGeneration))

		resp := f.svc.Generate(ctx, f.request("morango"))

		assert.False(t, resp.Success)
		assert.Empty(t, resp.ErrorType)
		assert.Equal(t, messageGenericFailed, resp.Message)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
		assert.Empty(t, f.usage.entries())
	})

	t.Run("timeout", func(t *testing.T) {
		f := newGenerationFixture(t, 3)
		f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded)

		resp := f.svc.Generate(ctx, f.request("morango"))

		assert.False(t, resp.Success)
		assert.ErrorIs(t, resp.Err, context.DeadlineExceeded)
		assert.Equal(t, 3, f.users.balance(f.user.ID))
	})
}

func TestGenerate_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 3)
	f.desserts.recordErr = errors.New("deadlock detected")
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleGenerated(), nil)

	resp := f.svc.Generate(ctx, f.request("morango"))

	assert.False(t, resp.Success)
	var perr *PersistenceError
	require.ErrorAs(t, resp.Err, &perr)
	assert.Equal(t, "record generation", perr.Op)
	assert.Equal(t, 3, f.users.balance(f.user.ID))
	assert.Equal(t, 0, f.store.size())
}

func TestGenerate_BalanceSpentDuringGeneration(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 1)
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// A concurrent request spends the last credit while this one is generating.
			_, _ = f.users.DecrementCreditsDB(ctx, f.user.ID)
		}).
		Return(sampleGenerated(), nil)

	resp := f.svc.Generate(ctx, f.request("morango"))

	assert.False(t, resp.Success)
	assert.Equal(t, ErrorTypeCredits, resp.ErrorType)
	assert.Equal(t, 0, f.users.balance(f.user.ID))
	assert.Equal(t, 0, f.desserts.count())
	assert.Equal(t, 1, f.store.size())
}

func TestGenerate_CacheHitAfterBalanceSpent(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 2)
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleGenerated(), nil).Once()

	warm := f.svc.Generate(ctx, f.request("morango"))
	require.True(t, warm.Success, warm.Message)
	require.Equal(t, 1, f.users.balance(f.user.ID))

	// The balance check passes, then a concurrent request takes the last credit before the charge.
	f.users.beforeDecrement = func() {
		_, _ = f.users.DecrementCreditsDB(ctx, f.user.ID)
	}
	resp := f.svc.Generate(ctx, f.request("morango"))

	assert.False(t, resp.Success)
	assert.False(t, resp.FromCache)
	assert.Nil(t, resp.Recipe)
	assert.Equal(t, ErrorTypeCredits, resp.ErrorType)
	assert.ErrorIs(t, resp.Err, ErrInsufficientCredits)
	assert.Equal(t, 0, f.users.balance(f.user.ID))
	assert.Equal(t, 1, f.desserts.count())
	assert.Len(t, f.usage.entries(), 1)
	f.gen.AssertExpectations(t)
}

func TestGenerate_UsageLogFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 2)
	f.usage.appendErr = errors.New("disk full")
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleGenerated(), nil)

	resp := f.svc.Generate(ctx, f.request("morango"))

	assert.True(t, resp.Success)
	assert.Equal(t, 1, f.users.balance(f.user.ID))
}

func TestGenerate_ClientCancellationAfterCreditCheck(t *testing.T) {
	f := newGenerationFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			cancel()
			genCtx := args.Get(0).(context.Context)
			assert.NoError(t, genCtx.Err())
		}).
		Return(sampleGenerated(), nil)

	resp := f.svc.Generate(ctx, f.request("morango"))

	assert.True(t, resp.Success)
	assert.Equal(t, 1, f.desserts.count())
}

func TestGenerate_PublishesProgress(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 2)
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleGenerated(), nil)

	events := f.progress.Subscribe("req-1")
	req := f.request("morango")
	req.RequestID = "req-1"
	resp := f.svc.Generate(ctx, req)
	require.True(t, resp.Success)

	var states []GenerationState
	for len(events) > 0 {
		ev := (<-events).(ProgressEvent)
		assert.Equal(t, "req-1", ev.RequestID)
		states = append(states, ev.State)
	}
	assert.Equal(t, []GenerationState{
		StateValidating,
		StateCheckingCredit,
		StateCheckingCache,
		StateGenerating,
		StatePersisting,
		StateLoggingUsage,
		StateDone,
	}, states)
}

func TestGenerate_PremiumRenewalHappensBeforeCheck(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture(t, 0)
	f.users.users[f.user.ID].Plan = models.PlanPremium
	f.users.users[f.user.ID].CreditsRenewedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.gen.On("GenerateDessert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(sampleGenerated(), nil)

	resp := f.svc.Generate(ctx, f.request("morango"))

	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, 99, f.users.balance(f.user.ID))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		resp GenerateResponse
		want string
	}{
		{"cache hit", GenerateResponse{Success: true, FromCache: true}, "cache_hit"},
		{"generated", GenerateResponse{Success: true}, "generated"},
		{"blocked", GenerateResponse{Blocked: true}, "blocked"},
		{"invalid", GenerateResponse{Err: &ValidationError{Message: "x"}}, "invalid"},
		{"credits", GenerateResponse{ErrorType: ErrorTypeCredits}, "insufficient_credits"},
		{"rate limit", GenerateResponse{ErrorType: ErrorTypeRateLimit}, "rate_limited"},
		{"failed", GenerateResponse{Err: errors.New("x")}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcome(tt.resp))
		})
	}
}
