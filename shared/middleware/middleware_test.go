package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

type fakeRevocations struct {
	at      time.Time
	revoked bool
	err     error
}

func (f fakeRevocations) RevokedAt(ctx context.Context, username string) (time.Time, bool, error) {
	return f.at, f.revoked, f.err
}

func newAuthTestRouter(revocations RevocationChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret, revocations), func(c *gin.Context) {
		caller, _ := GetCaller(c)
		c.JSON(http.StatusOK, gin.H{"username": caller.Username})
	})
	return r
}

func mustSign(t *testing.T, caller models.Caller) string {
	t.Helper()
	token, err := SignToken(testSecret, caller, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	alice := models.Caller{Username: "alice", Email: "alice@example.com"}
	validToken := mustSign(t, alice)

	otherSecret, _ := SignToken([]byte("other"), alice, time.Hour)
	expired, _ := SignToken(testSecret, alice, -time.Minute)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name           string
		header         string
		revocations    RevocationChecker
		expectedStatus int
	}{
		{name: "success - valid token", header: "Bearer " + validToken, expectedStatus: http.StatusOK},
		{name: "unauthorized - missing header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - wrong scheme", header: "Token " + validToken, expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - wrong secret", header: "Bearer " + otherSecret, expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - expired", header: "Bearer " + expired, expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - unsigned token", header: "Bearer " + noneAlg, expectedStatus: http.StatusUnauthorized},
		{
			name:           "unauthorized - revoked after issue",
			header:         "Bearer " + validToken,
			revocations:    fakeRevocations{at: time.Now().Add(time.Minute), revoked: true},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "success - issued after revocation",
			header:         "Bearer " + validToken,
			revocations:    fakeRevocations{at: time.Now().Add(-time.Hour), revoked: true},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unavailable - revocation store down",
			header:         "Bearer " + validToken,
			revocations:    fakeRevocations{err: errors.New("connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthTestRouter(tt.revocations)
			req, _ := http.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareSetsCaller(t *testing.T) {
	router := newAuthTestRouter(nil)
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+mustSign(t, models.Caller{Username: "alice"}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"username":"alice"`) {
		t.Errorf("expected caller username in body, got %s", w.Body.String())
	}
}

func TestRequireContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PATCH("/x", RequireContentType("application/merge-patch+json"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		contentType    string
		expectedStatus int
	}{
		{"application/merge-patch+json", http.StatusOK},
		{"application/merge-patch+json; charset=utf-8", http.StatusOK},
		{"application/json", http.StatusUnsupportedMediaType},
		{"", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodPatch, "/x", strings.NewReader(`{}`))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.expectedStatus {
			t.Errorf("[%q] expected status %d, got %d", tt.contentType, tt.expectedStatus, w.Code)
		}
	}
}

func TestRequireCapability(t *testing.T) {
	tests := []struct {
		name           string
		caller         *models.Caller
		capability     Capability
		expectedStatus int
	}{
		{"superuser may deactivate", &models.Caller{Username: "root", IsSuperuser: true}, CanDeactivateUser, http.StatusOK},
		{"permission holder may deactivate", &models.Caller{Username: "ops", Permissions: []string{models.PermissionDeactivateUsers}}, CanDeactivateUser, http.StatusOK},
		{"staff alone may not deactivate", &models.Caller{Username: "staff", IsStaff: true}, CanDeactivateUser, http.StatusForbidden},
		{"retirement service may retire", &models.Caller{Username: "retirement_service"}, CanRetireUser("retirement_service"), http.StatusOK},
		{"learner may not retire", &models.Caller{Username: "alice"}, CanRetireUser("retirement_service"), http.StatusForbidden},
		{"empty service name grants nothing", &models.Caller{Username: ""}, CanRetireUser(""), http.StatusForbidden},
		{"anonymous", nil, CanDeactivateUser, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if tt.caller != nil {
					SetCaller(c, *tt.caller)
				}
				c.Next()
			})
			r.POST("/x", RequireCapability(tt.capability), func(c *gin.Context) { c.Status(http.StatusOK) })

			req, _ := http.NewRequest(http.MethodPost, "/x", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d", tt.name, tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestConcealedStatus(t *testing.T) {
	if got := ConcealedStatus(true); got != http.StatusForbidden {
		t.Errorf("privileged: expected 403, got %d", got)
	}
	if got := ConcealedStatus(false); got != http.StatusNotFound {
		t.Errorf("unprivileged: expected 404, got %d", got)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
