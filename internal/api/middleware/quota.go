package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/versewise/versewise-server/internal/model"
	"github.com/versewise/versewise-server/internal/pkg/metrics"
	"github.com/versewise/versewise-server/internal/pkg/response"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
)

const currentUserKey = "currentUser"

// RequirePremium admits only premium subscribers to metered endpoints. The
// daily-allowance policy stays on the quota service for display; enforcement
// here is the simpler binary rule.
func RequirePremium(userRepo *repository.UserRepository, quotaService *service.QuotaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		user, err := userRepo.GetByID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.AuthError(c, "")
			} else {
				response.ServerError(c, "")
			}
			c.Abort()
			return
		}

		if !user.Active {
			response.AuthError(c, "account deactivated")
			c.Abort()
			return
		}

		if err := quotaService.RequirePremium(user); err != nil {
			metrics.ChatRequestsTotal.WithLabelValues("denied").Inc()
			response.PermissionError(c, "premium subscription required")
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// GetCurrentUser returns the user loaded by RequirePremium.
func GetCurrentUser(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}
