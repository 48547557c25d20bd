package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"geoattend/internal/identity"
)

const (
	claimsKey = "claims"
	// UserKeyContext holds the identity key of the authenticated user.
	UserKeyContext = "user_key"
)

// UserAuth enforces bearer access tokens issued by iss.
func UserAuth(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "message": "Please sign in."})
			return
		}
		claims, err := iss.Parse(tokenStr, TypeAccess)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrWrongTokenType) {
				msg = "access token required"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "message": "Please sign in again."})
			return
		}
		c.Set(claimsKey, claims)
		c.Set(UserKeyContext, claims.Subject)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[len("bearer "):])
	return tok, tok != ""
}

// CurrentUser returns the user set by UserAuth.
func CurrentUser(c *gin.Context) (identity.User, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return identity.User{}, false
	}
	claims, ok := v.(Claims)
	if !ok {
		return identity.User{}, false
	}
	return claims.User(), true
}
