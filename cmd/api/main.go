package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dessert_generator_go_backend/internal/api"
	"dessert_generator_go_backend/internal/auth"
	"dessert_generator_go_backend/internal/config"
	"dessert_generator_go_backend/internal/database"
	"dessert_generator_go_backend/internal/jobs"
	"dessert_generator_go_backend/internal/logger"
	"dessert_generator_go_backend/internal/metrics"
	"dessert_generator_go_backend/internal/services"
	"dessert_generator_go_backend/internal/utils/broker"
	"dessert_generator_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	l := logger.New(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		l.Info().Msg("No .env file found")
	}

	if cfg.GenAI.APIKey == "" {
		l.Fatal().Msg("GENAI_API_KEY is not set in the environment")
	}
	if cfg.Auth.JWTSecret == "" {
		l.Fatal().Msg("AUTH_JWT_SECRET is not set in the environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		l.Fatal().Err(err).Msg("Failed to migrate database")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize external services clients
	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GenAI.APIKey))
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to create GenAI client")
	}
	defer genaiClient.Close()

	var storage services.ImageStorage
	if cfg.Storage.Endpoint != "" {
		minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
			Secure: cfg.Storage.UseSSL,
		})
		if err != nil {
			l.Fatal().Err(err).Msg("Failed to create storage client")
		}
		storage, err = services.NewMinioImageStorage(ctx, minioClient, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL)
		if err != nil {
			l.Fatal().Err(err).Msg("Failed to prepare image bucket")
		}
	}

	recipeWriter := services.NewGeminiRecipeWriter(genaiClient, cfg.GenAI.Model, cfg.GenAI.Temperature)
	imageGenerator := services.NewRESTImageGenerator(cfg.Image.BaseURL, cfg.Image.APIKey, cfg.Image.Model, cfg.Image.Size, storage != nil)

	generatorOpts := []services.AIDessertGeneratorOption{
		services.WithRequestsPerMinute(cfg.GenAI.RequestsPerMinute),
		services.WithGeneratorMetrics(m),
	}
	if storage != nil {
		generatorOpts = append(generatorOpts, services.WithImageStorage(storage))
	}
	dessertGenerator := services.NewAIDessertGenerator(recipeWriter, imageGenerator, generatorOpts...)

	// Initialize Internal services
	userServiceDB := services.NewUserServiceDB(db)
	dessertServiceDB := services.NewDessertServiceDB(db)
	cacheServiceDB := services.NewCacheServiceDB(db)
	usageLogServiceDB := services.NewUsageLogServiceDB(db)

	creditService := services.NewCreditService(userServiceDB, usageLogServiceDB, services.CreditPolicy{
		FreeAllotment:    cfg.Credits.FreeAllotment,
		PremiumAllotment: cfg.Credits.PremiumAllotment,
		RenewalPeriod:    cfg.Credits.RenewalPeriod(),
	}, l, m)
	userService := services.NewUserService(userServiceDB, cfg.Credits.FreeAllotment)

	dessertCache := services.NewTwoTierCache(
		services.NewLRUMemoryTier(cfg.Cache.MemoryCapacity, cfg.Cache.MemoryTTL, time.Now),
		cacheServiceDB,
		cfg.Cache.DefaultTTL,
		services.WithCacheMetrics(m),
		services.WithCacheLogger(l),
	)

	progress := broker.NewBroker(32)
	generationService := services.NewDessertGenerationService(
		services.NewIngredientValidator(cfg.Generation.MaxIngredientsLength, cfg.Generation.BlockedTerms),
		creditService,
		dessertCache,
		dessertGenerator,
		dessertServiceDB,
		usageLogServiceDB,
		progress,
		services.GenerationConfig{
			Timeout:  cfg.Generation.Timeout,
			CacheTTL: cfg.Cache.DefaultTTL,
		},
		l,
		m,
	)
	historyService := services.NewDessertHistoryService(dessertServiceDB)
	usageLogService := services.NewUsageLogService(usageLogServiceDB, cfg.Jobs.UsageRetention)
	stripeService := services.NewStripeService(cfg.Stripe.SecretKey, cfg.Stripe.PremiumPriceID, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(l))

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Admin-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, api.Deps{
		Generator: generationService,
		History:   historyService,
		Accounts:  userService,
		Credits:   creditService,
		Usage:     usageLogService,
		Checkout:  stripeService,
		JWTSecret: cfg.Auth.JWTSecret,
		AdminKey:  cfg.AdminAPIKey,
	})

	// WebSocket upgrader
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     allowedOrigin(cfg.AllowedOrigins),
	}
	wsHandler := wsocket.NewHandler(generationService, progress, upgrader)

	r.GET("/ws/generate", auth.AuthMiddleware(cfg.Auth.JWTSecret, userService), func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		wsHandler.HandleWebSocket(c.Writer, c.Request, user)
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	scheduler := jobs.NewScheduler(cfg.Jobs.JobTimeout, l, m)
	if !cfg.Jobs.DisableScheduledJob {
		if err := jobs.Register(scheduler, cfg.Jobs, dessertCache, usageLogService, creditService); err != nil {
			l.Fatal().Err(err).Msg("Failed to register scheduled jobs")
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server shutdown failed")
	}
	scheduler.Stop(shutdownCtx)
}

// allowedOrigin accepts same-origin and non-browser clients, plus the configured CORS origins.
func allowedOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
