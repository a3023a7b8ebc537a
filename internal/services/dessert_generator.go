package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dessert_generator_go_backend/internal/metrics"
	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeneratedDessert is the result of one external generation.
type GeneratedDessert struct {
	Recipe   models.Recipe
	ImageURL string
}

// DessertGenerator produces a recipe and an image. Errors wrap ErrUpstreamRateLimited when the provider
// is throttling and ErrUpstreamGeneration otherwise.
type DessertGenerator interface {
	GenerateDessert(ctx context.Context, ingredients string, theme models.Theme, language string) (*GeneratedDessert, error)
}

type RecipeWriter interface {
	WriteRecipe(ctx context.Context, ingredients string, theme models.Theme, language string) (*models.Recipe, error)
}

// GeneratedImage carries either a provider URL or the raw image bytes.
type GeneratedImage struct {
	URL         string
	Data        []byte
	ContentType string
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error)
}

type ImageStorage interface {
	UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AIDessertGenerator writes the recipe first, then renders an image of it.
type AIDessertGenerator struct {
	writer  RecipeWriter
	images  ImageGenerator
	storage ImageStorage
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

type AIDessertGeneratorOption func(*AIDessertGenerator)

// WithImageStorage uploads inline image bytes so the stored reference does not depend on the provider.
func WithImageStorage(storage ImageStorage) AIDessertGeneratorOption {
	return func(g *AIDessertGenerator) { g.storage = storage }
}

// WithRequestsPerMinute throttles outgoing generations on this process.
func WithRequestsPerMinute(rpm int) AIDessertGeneratorOption {
	return func(g *AIDessertGenerator) {
		if rpm > 0 {
			g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		}
	}
}

func WithGeneratorMetrics(m *metrics.Metrics) AIDessertGeneratorOption {
	return func(g *AIDessertGenerator) { g.metrics = m }
}

func NewAIDessertGenerator(writer RecipeWriter, images ImageGenerator, opts ...AIDessertGeneratorOption) *AIDessertGenerator {
	g := &AIDessertGenerator{writer: writer, images: images}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *AIDessertGenerator) GenerateDessert(ctx context.Context, ingredients string, theme models.Theme, language string) (*GeneratedDessert, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for generation slot: %w", ErrUpstreamGeneration, err)
		}
	}

	start := time.Now()
	recipe, err := g.writer.WriteRecipe(ctx, ingredients, theme, language)
	g.metrics.ObserveUpstream("recipe", err, time.Since(start))
	if err != nil {
		return nil, classifyUpstreamError("recipe", err)
	}

	start = time.Now()
	img, err := g.images.GenerateImage(ctx, ImagePrompt(recipe, theme))
	g.metrics.ObserveUpstream("image", err, time.Since(start))
	if err != nil {
		return nil, classifyUpstreamError("image", err)
	}

	imageURL := img.URL
	if len(img.Data) > 0 {
		if g.storage == nil {
			return nil, fmt.Errorf("%w: image returned inline but no storage is configured", ErrUpstreamGeneration)
		}
		key := fmt.Sprintf("desserts/%s%s", uuid.NewString(), imageExtension(img.ContentType))
		imageURL, err = g.storage.UploadImage(ctx, key, img.Data, img.ContentType)
		if err != nil {
			return nil, fmt.Errorf("%w: storing image: %w", ErrUpstreamGeneration, err)
		}
	}
	if imageURL == "" {
		return nil, fmt.Errorf("%w: image provider returned no image", ErrUpstreamGeneration)
	}

	return &GeneratedDessert{Recipe: *recipe, ImageURL: imageURL}, nil
}

// ImagePrompt describes the finished dessert in the visual style of the theme.
func ImagePrompt(recipe *models.Recipe, theme models.Theme) string {
	style := "delicate pastel styling, soft natural light, floral details"
	if theme == models.ThemeMasculine {
		style = "bold rustic styling, dark wood, dramatic light"
	}
	return fmt.Sprintf("Professional food photograph of %s, a dessert made with %s. %s. No text.",
		recipe.Name, strings.Join(recipe.Ingredients, ", "), style)
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func classifyUpstreamError(provider string, err error) error {
	if errors.Is(err, ErrUpstreamRateLimited) || errors.Is(err, ErrUpstreamGeneration) {
		return err
	}
	if IsRateLimitError(err) {
		return fmt.Errorf("%w: %s: %w", ErrUpstreamRateLimited, provider, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamGeneration, provider, err)
}

// IsRateLimitError reports provider throttling from either the REST or the gRPC transport.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUpstreamRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return false
}
