package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"video-gateway/domain/dto"
	"video-gateway/infrastructure/logger"
	"video-gateway/infrastructure/utils"
)

// Auth guards control endpoints with a bearer JWT signed by secretKey.
// An empty secret leaves the routes open.
func Auth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if secretKey == "" {
			ctx.Next()
			return
		}
		res := dto.ControlResponse{Success: false, Message: "Unauthorized"}

		authorization := ctx.Request.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authorization, "Bearer ")
		if !ok || token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}
		claims, err := utils.ParseToken(token, secretKey)
		if err != nil {
			res.Message = reason(err)
			logger.GetLogger().WithField("error", err).Debug("Rejected control token")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}
		if sub, ok := claims["sub"].(string); ok {
			ctx.Set("subject", sub)
		}
		ctx.Next()
	}
}

func reason(err error) string {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		if ve.Errors&jwt.ValidationErrorMalformed != 0 {
			return "That's not even a token"
		} else if ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0 {
			// Token is either expired or not active yet
			return "Timing is everything"
		}
	}
	return "Unauthorized"
}
