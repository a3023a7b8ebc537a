package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"dessert_generator_go_backend/internal/metrics"
	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultLanguage = "pt"

type GenerationState string

const (
	StateValidating     GenerationState = "validating"
	StateCheckingCredit GenerationState = "checking_credit"
	StateCheckingCache  GenerationState = "checking_cache"
	StateCacheHit       GenerationState = "cache_hit"
	StateGenerating     GenerationState = "generating"
	StatePersisting     GenerationState = "persisting"
	StateLoggingUsage   GenerationState = "logging_usage"
	StateDone           GenerationState = "done"
	StateRejected       GenerationState = "rejected"
	StateFailed         GenerationState = "failed"
)

type ErrorType string

const (
	ErrorTypeCredits   ErrorType = "credits"
	ErrorTypeRateLimit ErrorType = "rate-limit"
)

const (
	messageNotFood       = "Those ingredients don't look like food. Please use only edible ingredients."
	messageNoCredits     = "You have no credits left. Upgrade to keep creating desserts."
	messageRateLimited   = "Our kitchen is busy right now. Please try again in a moment."
	messageGenericFailed = "We couldn't create your dessert right now. Please try again."
)

type GenerateRequest struct {
	UserID      uuid.UUID
	Ingredients string
	Theme       models.Theme
	Language    string
	// RequestID is the progress topic. Empty disables progress events.
	RequestID string
}

// GenerateResponse is the only thing callers see; every failure is translated into it.
type GenerateResponse struct {
	Success   bool           `json:"success"`
	Recipe    *models.Recipe `json:"recipe,omitempty"`
	Image     string         `json:"image,omitempty"`
	FromCache bool           `json:"fromCache,omitempty"`
	Blocked   bool           `json:"blocked,omitempty"`
	Message   string         `json:"message,omitempty"`
	ErrorType ErrorType      `json:"errorType,omitempty"`

	// Err is the underlying domain error for status mapping and logging. Never serialized.
	Err error `json:"-"`
}

// ProgressEvent is published on the request's topic at each state transition.
type ProgressEvent struct {
	RequestID string          `json:"requestId"`
	State     GenerationState `json:"state"`
}

type ProgressPublisher interface {
	Publish(topic string, msg interface{})
}

// GenerationConfig bounds one generation.
type GenerationConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DessertGenerationService runs one request through validation, credit check, cache lookup, generation
// and persistence.
type DessertGenerationService struct {
	validator *IngredientValidator
	credits   CreditLedger
	cache     DessertCache
	generator DessertGenerator
	desserts  DessertServiceDB
	usage     UsageLogServiceDB
	progress  ProgressPublisher
	cfg       GenerationConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewDessertGenerationService(
	validator *IngredientValidator,
	credits CreditLedger,
	cache DessertCache,
	generator DessertGenerator,
	desserts DessertServiceDB,
	usage UsageLogServiceDB,
	progress ProgressPublisher,
	cfg GenerationConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *DessertGenerationService {
	return &DessertGenerationService{
		validator: validator,
		credits:   credits,
		cache:     cache,
		generator: generator,
		desserts:  desserts,
		usage:     usage,
		progress:  progress,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

func (s *DessertGenerationService) transition(req GenerateRequest, state GenerationState) {
	if s.progress == nil || req.RequestID == "" {
		return
	}
	s.progress.Publish(req.RequestID, ProgressEvent{RequestID: req.RequestID, State: state})
}

func normalizeRequest(req GenerateRequest) GenerateRequest {
	req.Language = strings.ToLower(strings.TrimSpace(req.Language))
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	req.Theme = models.Theme(strings.ToLower(strings.TrimSpace(string(req.Theme))))
	if req.Theme == "" {
		req.Theme = models.ThemeFeminine
	}
	return req
}

func validLanguage(lang string) bool {
	if len(lang) > 16 {
		return false
	}
	for _, r := range lang {
		if (r < 'a' || r > 'z') && r != '-' {
			return false
		}
	}
	return true
}

// Generate never returns an error; failures are reported through the response.
func (s *DessertGenerationService) Generate(ctx context.Context, req GenerateRequest) (resp GenerateResponse) {
	start := time.Now()
	req = normalizeRequest(req)
	log := s.logger.With().
		Str("user_id", req.UserID.String()).
		Str("request_id", req.RequestID).
		Logger()

	defer func() {
		s.metrics.ObserveGeneration(outcome(resp), time.Since(start))
	}()

	s.transition(req, StateValidating)
	if err := s.validator.Validate(req.Ingredients); err != nil {
		return s.reject(req, err)
	}
	if !req.Theme.Valid() {
		return s.reject(req, &ValidationError{Message: "Theme must be feminine or masculine."})
	}
	if !validLanguage(req.Language) {
		return s.reject(req, &ValidationError{Message: "Language must be a language code such as pt or en."})
	}

	s.transition(req, StateCheckingCredit)
	if _, err := s.credits.CheckAndRenewCredits(ctx, req.UserID); err != nil {
		log.Error().Err(err).Msg("credit renewal check failed")
		return s.fail(req, err)
	}
	ok, err := s.credits.HasCredits(ctx, req.UserID)
	if err != nil {
		log.Error().Err(err).Msg("credit balance check failed")
		return s.fail(req, err)
	}
	if !ok {
		return s.reject(req, ErrInsufficientCredits)
	}

	// From here on the request outlives the client; only the generation timeout stops it.
	detached := context.WithoutCancel(ctx)

	s.transition(req, StateCheckingCache)
	key := GenerateCacheKey(req.Ingredients, string(req.Theme), req.Language)
	if cached, hit := s.cache.Get(detached, key); hit {
		s.transition(req, StateCacheHit)
		return s.serveCached(detached, req, key, cached, log)
	}

	s.transition(req, StateGenerating)
	genCtx, cancel := context.WithTimeout(detached, s.cfg.Timeout)
	generated, err := s.generator.GenerateDessert(genCtx, req.Ingredients, req.Theme, req.Language)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Dur("timeout", s.cfg.Timeout).Msg("generation timed out")
		} else {
			log.Error().Err(err).Msg("generation failed")
		}
		return s.fail(req, err)
	}

	s.transition(req, StatePersisting)
	return s.persist(detached, req, key, generated, log)
}

func (s *DessertGenerationService) serveCached(ctx context.Context, req GenerateRequest, key string, cached *CachedDessert, log zerolog.Logger) GenerateResponse {
	_, applied, err := s.credits.DecrementCredit(ctx, req.UserID)
	if err != nil {
		log.Error().Err(err).Msg("credit decrement on cache hit failed")
		return s.fail(req, &PersistenceError{Op: "decrement credit", Err: err})
	}
	if !applied {
		return s.reject(req, ErrInsufficientCredits)
	}

	s.transition(req, StateLoggingUsage)
	s.recordGeneration(ctx, req, key, true, nil, log)

	s.transition(req, StateDone)
	recipe := cached.Recipe
	return GenerateResponse{
		Success:   true,
		Recipe:    &recipe,
		Image:     cached.ImageURL,
		FromCache: true,
	}
}

func (s *DessertGenerationService) persist(ctx context.Context, req GenerateRequest, key string, generated *GeneratedDessert, log zerolog.Logger) GenerateResponse {
	cached := &CachedDessert{Recipe: generated.Recipe, ImageURL: generated.ImageURL}

	dessert := &models.Dessert{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Ingredients: req.Ingredients,
		Name:        generated.Recipe.Name,
		ImageURL:    generated.ImageURL,
		Theme:       req.Theme,
		Language:    req.Language,
		CacheKey:    &key,
	}
	if err := dessert.SetRecipe(generated.Recipe); err != nil {
		return s.fail(req, &PersistenceError{Op: "encode recipe", Err: err})
	}

	charged, created, err := s.desserts.RecordGenerationDB(ctx, dessert)
	if err != nil {
		log.Error().Err(err).Str("cache_key", key).Msg("failed to record generation")
		return s.fail(req, &PersistenceError{Op: "record generation", Err: err})
	}
	s.metrics.CreditDecrement(charged)

	if err := s.cache.Set(ctx, key, cached, s.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("cache write failed")
	}

	if !charged {
		// The balance ran out during generation. The result stays cached for the next identical request.
		return s.reject(req, ErrInsufficientCredits)
	}

	var dessertID *uuid.UUID
	if created {
		dessertID = &dessert.ID
	} else {
		log.Debug().Str("cache_key", key).Msg("dessert for cache key already stored by a concurrent request")
	}

	s.transition(req, StateLoggingUsage)
	s.recordGeneration(ctx, req, key, false, dessertID, log)

	s.transition(req, StateDone)
	recipe := generated.Recipe
	return GenerateResponse{
		Success: true,
		Recipe:  &recipe,
		Image:   generated.ImageURL,
	}
}

// recordGeneration writes the audit row. The credit is already spent, so a failure here is logged only.
func (s *DessertGenerationService) recordGeneration(ctx context.Context, req GenerateRequest, key string, fromCache bool, dessertID *uuid.UUID, log zerolog.Logger) {
	err := appendUsage(ctx, s.usage, req.UserID, 1, models.GenerationDetails{
		CacheKey:  key,
		FromCache: fromCache,
		DessertID: dessertID,
		Theme:     req.Theme,
		Language:  req.Language,
	})
	if err != nil {
		log.Error().Err(err).Str("cache_key", key).Msg("usage log write failed")
	}
}

func (s *DessertGenerationService) reject(req GenerateRequest, err error) GenerateResponse {
	s.transition(req, StateRejected)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		msg := verr.Message
		if verr.Blocked {
			msg = messageNotFood
		}
		return GenerateResponse{Blocked: verr.Blocked, Message: msg, Err: err}
	case errors.Is(err, ErrInsufficientCredits):
		return GenerateResponse{ErrorType: ErrorTypeCredits, Message: messageNoCredits, Err: err}
	default:
		return GenerateResponse{Message: messageGenericFailed, Err: err}
	}
}

func (s *DessertGenerationService) fail(req GenerateRequest, err error) GenerateResponse {
	s.transition(req, StateFailed)
	if errors.Is(err, ErrUpstreamRateLimited) {
		return GenerateResponse{ErrorType: ErrorTypeRateLimit, Message: messageRateLimited, Err: err}
	}
	return GenerateResponse{Message: messageGenericFailed, Err: err}
}

func outcome(resp GenerateResponse) string {
	var verr *ValidationError
	switch {
	case resp.Success && resp.FromCache:
		return "cache_hit"
	case resp.Success:
		return "generated"
	case resp.Blocked:
		return "blocked"
	case errors.As(resp.Err, &verr):
		return "invalid"
	case resp.ErrorType == ErrorTypeCredits:
		return "insufficient_credits"
	case resp.ErrorType == ErrorTypeRateLimit:
		return "rate_limited"
	default:
		return "failed"
	}
}
