package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID   = "userID"
	ctxUserName = "userName"
	ctxAdmin    = "admin"
)

// JWTMiddleware accepts HS256 bearer tokens. The sub claim identifies the
// caller, name is their display name and admin grants admin routes.
func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing bearer token"})
			return
		}
		claims := jwt.MapClaims{}
		tok, err := jwt.ParseWithClaims(h[7:], claims, func(t *jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "invalid token"})
			return
		}
		sub, _ := claims.GetSubject()
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "token has no subject"})
			return
		}
		name, _ := claims["name"].(string)
		if name == "" {
			name = sub
		}
		admin, _ := claims["admin"].(bool)

		c.Set(ctxUserID, sub)
		c.Set(ctxUserName, name)
		c.Set(ctxAdmin, admin)
		c.Next()
	}
}

// AdminOnly rejects callers without the admin claim.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin only"})
			return
		}
		c.Next()
	}
}

// SignToken issues a token for the given user, used by the CLI and tests.
func SignToken(secret []byte, userID, name string, admin bool) (string, error) {
	claims := jwt.MapClaims{"sub": userID, "name": name}
	if admin {
		claims["admin"] = true
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
