package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/service"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type resolverStub struct {
	principals map[string]*models.Principal
}

func (r resolverStub) Resolve(token string) (*models.Principal, error) {
	if p, ok := r.principals[token]; ok {
		return p, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newResolver() resolverStub {
	return resolverStub{principals: map[string]*models.Principal{
		"member-token":  {UserID: "u1", Role: models.RoleMember},
		"manager-token": {UserID: "m1", Role: models.RoleManager},
	}}
}

func whoAmI(c *gin.Context) {
	p := PrincipalFrom(c)
	if p == nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, p.UserID)
}

func perform(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	resolver := newResolver()
	r.GET("/me", JWT(resolver), whoAmI)
	r.GET("/admin", JWT(resolver), RequireManager(), whoAmI)
	r.GET("/open", OptionalJWT(resolver), whoAmI)

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
		body   string
	}{
		{"missing header", "/me", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized, "invalid authorization header"},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"member", "/me", "Bearer member-token", http.StatusOK, "u1"},
		{"member on manager route", "/admin", "bearer member-token", http.StatusForbidden, ""},
		{"manager", "/admin", "Bearer manager-token", http.StatusOK, "m1"},
		{"optional anonymous", "/open", "", http.StatusOK, "anonymous"},
		{"optional bad token", "/open", "Bearer nope", http.StatusOK, "anonymous"},
		{"optional member", "/open", "Bearer member-token", http.StatusOK, "u1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := perform(r, tc.path, tc.auth)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
		})
	}
}

func TestRequireRolesWithoutPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireManager(), whoAmI)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "/admin", "").Code)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/shifts/:id", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusNoContent)
	})

	perform(r, "/shifts/abc", "")
	perform(r, "/unknown", "")

	assert.Equal(t, uint64(2), metrics.Snapshot().RequestsTotal)
}
