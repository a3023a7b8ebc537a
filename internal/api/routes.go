package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"dessert_generator_go_backend/internal/auth"
	apperrors "dessert_generator_go_backend/internal/errors"
	"dessert_generator_go_backend/internal/models"
	"dessert_generator_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
)

type DessertGenerator interface {
	Generate(ctx context.Context, req services.GenerateRequest) services.GenerateResponse
}

type DessertHistory interface {
	ListDesserts(ctx context.Context, userID uuid.UUID, page services.Page) (*services.DessertPage, error)
	GetDessert(ctx context.Context, userID, id uuid.UUID) (*models.Dessert, error)
	DeleteDessert(ctx context.Context, userID, id uuid.UUID) error
}

type AccountService interface {
	auth.UserRegistrar
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

type CreditAdmin interface {
	CheckAndRenewCredits(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateCredits(ctx context.Context, userID uuid.UUID, credits int, reason string) (*models.User, error)
	UpgradeToPremium(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type UsageHistory interface {
	ListUsage(ctx context.Context, userID uuid.UUID, page services.Page) ([]models.UsageLog, error)
}

type CheckoutCreator interface {
	CreateCheckoutSession(userID uuid.UUID, email string) (*stripe.CheckoutSession, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Generator DessertGenerator
	History   DessertHistory
	Accounts  AccountService
	Credits   CreditAdmin
	Usage     UsageHistory
	Checkout  CheckoutCreator
	JWTSecret string
	AdminKey  string
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	authenticated := auth.AuthMiddleware(deps.JWTSecret, deps.Accounts)

	api := r.Group("/api")
	{
		api.POST("/desserts/generate", authenticated, generateDessertHandler(deps.Generator))
		api.GET("/desserts", authenticated, listDessertsHandler(deps.History))
		api.GET("/desserts/:id", authenticated, getDessertHandler(deps.History))
		api.GET("/desserts/:id/pdf", authenticated, dessertPDFHandler(deps.History))
		api.DELETE("/desserts/:id", authenticated, deleteDessertHandler(deps.History))
		api.GET("/me", authenticated, getMeHandler(deps.Credits))
		api.GET("/usage", authenticated, listUsageHandler(deps.Usage))
		api.POST("/checkout", authenticated, createCheckoutHandler(deps.Checkout))
		api.DELETE("/account", authenticated, deleteAccountHandler(deps.Accounts))
	}

	admin := api.Group("/admin", auth.AdminMiddleware(deps.AdminKey))
	{
		admin.PUT("/users/:id/credits", setCreditsHandler(deps.Credits))
		admin.POST("/users/:id/upgrade", upgradeUserHandler(deps.Credits))
	}
}

func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return nil, false
	}
	return user, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.HandleError(c, apperrors.New400Error(fmt.Sprintf("Invalid %s", name)))
		return uuid.Nil, false
	}
	return id, true
}

func pageQuery(c *gin.Context) services.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return services.Page{Limit: limit, Offset: offset}.Normalize()
}

type generateRequest struct {
	Ingredients string `json:"ingredients"`
	Theme       string `json:"theme"`
	Language    string `json:"language"`
	RequestID   string `json:"requestId"`
}

// generateDessertHandler always answers with the generation response shape. The status code mirrors
// the outcome so clients that only look at it still behave.
func generateDessertHandler(generator DessertGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		var request generateRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid request body"))
			return
		}

		resp := generator.Generate(c.Request.Context(), services.GenerateRequest{
			UserID:      user.ID,
			Ingredients: request.Ingredients,
			Theme:       models.Theme(request.Theme),
			Language:    request.Language,
			RequestID:   request.RequestID,
		})

		status := http.StatusOK
		if !resp.Success {
			mapped := apperrors.FromDomain(resp.Err)
			status = mapped.StatusCode
			if mapped.Type == apperrors.ErrorTypeInternalServerError {
				zerolog.Ctx(c.Request.Context()).Error().Err(resp.Err).Msg("dessert generation failed")
			}
		}
		c.JSON(status, resp)
	}
}

func listDessertsHandler(history DessertHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		page, err := history.ListDesserts(c.Request.Context(), user.ID, pageQuery(c))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func getDessertHandler(history DessertHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		dessert, err := history.GetDessert(c.Request.Context(), user.ID, id)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, dessert)
	}
}

func dessertPDFHandler(history DessertHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		dessert, err := history.GetDessert(c.Request.Context(), user.ID, id)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		data, err := services.RenderRecipePDF(dessert)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="dessert-%s.pdf"`, dessert.ID))
		c.Data(http.StatusOK, "application/pdf", data)
	}
}

func deleteDessertHandler(history DessertHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		if err := history.DeleteDessert(c.Request.Context(), user.ID, id); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// getMeHandler applies a due premium renewal before reporting the balance.
func getMeHandler(credits CreditAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		refreshed, err := credits.CheckAndRenewCredits(c.Request.Context(), user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, refreshed)
	}
}

func listUsageHandler(usage UsageHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		page := pageQuery(c)
		logs, err := usage.ListUsage(c.Request.Context(), user.ID, page)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if logs == nil {
			logs = []models.UsageLog{}
		}
		c.JSON(http.StatusOK, gin.H{"items": logs, "limit": page.Limit, "offset": page.Offset})
	}
}

func createCheckoutHandler(checkout CheckoutCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if user.IsPremium() {
			apperrors.HandleError(c, apperrors.New400Error("Already subscribed to premium"))
			return
		}
		session, err := checkout.CreateCheckoutSession(user.ID, user.EmailAddress())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "url": session.URL})
	}
}

func deleteAccountHandler(accounts AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if err := accounts.DeleteAccount(c.Request.Context(), user.ID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setCreditsHandler(credits CreditAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		var request struct {
			Credits *int   `json:"credits" binding:"required"`
			Reason  string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("credits is required"))
			return
		}
		user, err := credits.UpdateCredits(c.Request.Context(), id, *request.Credits, request.Reason)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func upgradeUserHandler(credits CreditAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		user, err := credits.UpgradeToPremium(c.Request.Context(), id)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
