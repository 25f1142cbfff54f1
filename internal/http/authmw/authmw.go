package authmw

import (
	"net/http"

	"watchpartygo/internal/auth"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the gin context.
func RequireAuth(v auth.IVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := v.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// Identity returns the caller set by RequireAuth.
func Identity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		return v.(auth.Identity)
	}
	return auth.Identity{}
}
