package middleware

import (
	"net/http"
	"slices"
	"strings"

	"bookingengine/internal/config"
	"bookingengine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the "role" claim of tokens issued by the platform
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// Context keys set by the auth middleware
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// RequireAuth validates the JWT and exposes its subject and role on the context.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticate(c, secret); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole validates the JWT and checks if the user's role exists in the allowedRoles list
func RequireRole(secret []byte, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, secret)
		if !ok {
			return
		}

		userRole, _ := claims["role"].(string)
		if userRole == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}
		if !slices.Contains(allowedRoles, userRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Next()
	}
}

// CurrentUserID returns the authenticated subject, or "" outside the auth middleware.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// IsPrivileged reports whether the authenticated role may see every reservation.
func IsPrivileged(c *gin.Context) bool {
	role := c.GetString(ContextUserRole)
	return role == RoleAdmin || role == RoleManager
}

func authenticate(c *gin.Context, secret []byte) (jwt.MapClaims, bool) {
	// Try cookie first, fallback to Authorization header
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return nil, false
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return nil, false
		}
		tokenString = parts[1]
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token claims"))
		return nil, false
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Token has no subject"))
		return nil, false
	}

	role, _ := claims["role"].(string)
	c.Set(ContextUserID, sub)
	c.Set(ContextUserRole, role)
	return claims, true
}

// Guard binds the auth middleware to the configured signing secret.
type Guard struct {
	secret []byte
}

func NewGuard(cfg *config.Config) *Guard {
	return &Guard{secret: []byte(cfg.JWTSecret)}
}

func (g *Guard) Authenticated() gin.HandlerFunc {
	return RequireAuth(g.secret)
}

func (g *Guard) Roles(allowedRoles ...string) gin.HandlerFunc {
	return RequireRole(g.secret, allowedRoles...)
}

// Secret is the HMAC key used to verify tokens, shared with the websocket endpoint.
func (g *Guard) Secret() []byte {
	return g.secret
}
