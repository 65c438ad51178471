package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const Version = "2.1.0"

func (h *Handler) Status(c *gin.Context) {
	database := "connected"
	if err := h.repo.Ping(); err != nil {
		database = "error"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "online",
		"version":   Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"database":  database,
	})
}
