package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"watchpartygo/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := auth.NewVerifier("test-secret-key", "")
	token, err := v.Issue(auth.Identity{UserID: "u1", Username: "alice"}, time.Minute)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireAuth(v), func(c *gin.Context) {
		c.JSON(http.StatusOK, Identity(c))
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":"u1","username":"alice"}`, w.Body.String())
			}
		})
	}
}
