package middleware

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/wacrm/pkg/constant"
	"github.com/wacrm/pkg/state"
)

func ClaimIp() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(state.CurrentUserIP, c.ClientIP())
		c.Next()
	}
}

func Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := os.Getenv("ADMIN_KEY")
		if key == "" || c.GetHeader("admin_key") != key {
			c.JSON(401, gin.H{"error": constant.UNAUTHORIZED_ACCESS})
			c.Abort()
			return
		}
		c.Next()
	}
}

func CheckAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": "Token is required"})
			c.Abort()
			return
		}

		authToken := strings.Split(authHeader, " ")
		if len(authToken) != 2 || authToken[0] != "Bearer" {
			c.JSON(400, gin.H{"error": "Invalid/Malformed auth token"})
			c.Abort()
			return
		}

		myJwt := authToken[1]
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(myJwt, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(os.Getenv("SECRET")), nil
		})

		if err != nil {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}

		if !token.Valid {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}

		if exp, ok := claims["exp"].(float64); !ok || float64(time.Now().Unix()) > exp {
			c.JSON(401, gin.H{"error": constant.TOKEN_EXPIRED})
			c.Abort()
			return
		}

		// Set user ID to context
		if userID, ok := claims["id"].(float64); ok {
			c.Set(state.CurrentUserId, uint(userID))
		}

		workspaceID := workspaceClaim(claims)
		if workspaceID == "" {
			c.JSON(403, gin.H{"error": constant.WORKSPACE_REQUIRED})
			c.Abort()
			return
		}
		c.Set(state.CurrentWorkspaceId, workspaceID)

		c.Next()
	}
}

// workspaceClaim accepts the workspace id as a string or a JSON number.
func workspaceClaim(claims jwt.MapClaims) string {
	switch v := claims["workspace_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
