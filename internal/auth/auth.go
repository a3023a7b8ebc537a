package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dessert_generator_go_backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const userKey = "user"

// UserRegistrar registers an authenticated identity on first sight.
type UserRegistrar interface {
	CreateOrUpdateUser(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
}

// AuthMiddleware verifies the HS256 access token issued by the identity provider and loads the
// matching user into the gin context.
func AuthMiddleware(secret string, users UserRegistrar) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		var token string
		// Browsers cannot set headers on a WebSocket handshake.
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
				return
			}
			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
				return
			}
			token = bearerToken[1]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing token"})
			return
		}

		claims, err := verifyToken(token, secret)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token subject"})
			return
		}
		email, _ := claims["email"].(string)

		user, err := users.CreateOrUpdateUser(c.Request.Context(), userID, email)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to register user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to process user information"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// SetUser is used by tests and internal callers that authenticate by other means.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(userKey, user)
}

// AdminMiddleware guards operator routes with a static key. An empty key disables the routes.
func AdminMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Key")
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access forbidden"})
			return
		}
		c.Next()
	}
}

func verifyToken(tokenString, secret string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, errors.New("token secret is not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
