package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

// RevocationChecker reports when all tokens issued to a user stopped being valid.
type RevocationChecker interface {
	RevokedAt(ctx context.Context, username string) (time.Time, bool, error)
}

type Claims struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	IsStaff     bool     `json:"isStaff"`
	IsSuperuser bool     `json:"isSuperuser"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Caller() models.Caller {
	return models.Caller{
		Username:    c.Username,
		Email:       c.Email,
		IsStaff:     c.IsStaff,
		IsSuperuser: c.IsSuperuser,
		Permissions: c.Permissions,
	}
}

// SignToken mints an HS256 token for caller valid for ttl.
func SignToken(secret []byte, caller models.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username:    caller.Username,
		Email:       caller.Email,
		IsStaff:     caller.IsStaff,
		IsSuperuser: caller.IsSuperuser,
		Permissions: caller.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AuthMiddleware verifies the bearer token and stores the caller on the
// context. revocations may be nil.
func AuthMiddleware(secret []byte, revocations RevocationChecker) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			RespondWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid || claims.Username == "" {
			RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		if revocations != nil {
			revokedAt, revoked, err := revocations.RevokedAt(c.Request.Context(), claims.Username)
			if err != nil {
				log.Printf("Failed to check token revocation for %s: %v", claims.Username, err)
				RespondWithError(c, http.StatusServiceUnavailable, "Unable to verify token")
				c.Abort()
				return
			}
			if revoked && issuedNotAfter(claims, revokedAt) {
				RespondWithError(c, http.StatusUnauthorized, "Token has been revoked")
				c.Abort()
				return
			}
		}

		SetCaller(c, claims.Caller())
		c.Next()
	}
}

func issuedNotAfter(claims *Claims, at time.Time) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return !claims.IssuedAt.Time.After(at)
}

func SetCaller(c *gin.Context, caller models.Caller) {
	c.Set(callerKey, caller)
}

func GetCaller(c *gin.Context) (models.Caller, bool) {
	v, exists := c.Get(callerKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := v.(models.Caller)
	return caller, ok
}
