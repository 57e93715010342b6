package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz is the liveness probe.
// GET /healthz
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
