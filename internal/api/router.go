package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"arc-stats-service/internal/middleware"
	"arc-stats-service/internal/service"
	"arc-stats-service/internal/service/stats"
	appErr "arc-stats-service/pkg/errors"
	"arc-stats-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// Header carrying the recompute shared secret.
const recomputeTokenHeader = "x-recompute-token"

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "Method not allowed"})
	})

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	r.POST("/admin/auth/login", handler.AdminLogin)

	v1 := r.Group("/stats/v1")
	{
		v1.POST("/recompute", handler.Recompute)

		protected := v1.Group("/")
		protected.Use(middleware.AdminAuthRequired())
		{
			protected.GET("/ratings", handler.ListRatings)
			protected.GET("/matches", handler.ListMatches)
			protected.GET("/players/:key/events", handler.PlayerEvents)
		}
	}
}

type adminLoginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type recomputeBody struct {
	MinTurns         *int `json:"minTurns"`
	MinVictoryPoints *int `json:"minVictoryPoints"`
	StatsVersion     *int `json:"statsVersion"`
	RatingVersion    *int `json:"ratingVersion"`
}

func (b recomputeBody) toParams() stats.RecomputeParams {
	params := stats.RecomputeParams{
		MinTurns:         stats.DefaultMinTurns,
		MinVictoryPoints: stats.DefaultMinVictoryPoints,
		StatsVersion:     stats.DefaultStatsVersion,
		RatingVersion:    stats.DefaultRatingVersion,
	}
	if b.MinTurns != nil {
		params.MinTurns = *b.MinTurns
	}
	if b.MinVictoryPoints != nil {
		params.MinVictoryPoints = *b.MinVictoryPoints
	}
	if b.StatsVersion != nil {
		params.StatsVersion = *b.StatsVersion
	}
	if b.RatingVersion != nil {
		params.RatingVersion = *b.RatingVersion
	}
	return params
}

type recomputeSuccess struct {
	Success bool `json:"success"`
	*stats.Summary
}

// Recompute triggers a full derived-state rebuild. The body is optional;
// absent fields fall back to defaults.
func (h *Handler) Recompute(c *gin.Context) {
	var body recomputeBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	token := c.GetHeader(recomputeTokenHeader)
	summary, err := h.services.Stats.Recompute(c.Request.Context(), token, body.toParams())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, appErr.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, appErr.ErrRecomputeInProgress):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, recomputeSuccess{Success: true, Summary: summary})
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.services.Admin.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, appErr.ErrAdminNotFound), errors.Is(err, appErr.ErrInvalidAdminPassword):
			status = http.StatusUnauthorized
		case errors.Is(err, appErr.ErrAdminDisabled):
			status = http.StatusForbidden
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, resp)
}

func (h *Handler) ListRatings(c *gin.Context) {
	page, size, err := parsePageQuery(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Leaderboard.ListRatings(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) ListMatches(c *gin.Context) {
	page, size, err := parsePageQuery(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Leaderboard.ListMatches(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) PlayerEvents(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		response.Error(c, http.StatusBadRequest, "invalid player key")
		return
	}

	history, err := h.services.Leaderboard.PlayerHistory(c.Request.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, appErr.ErrPlayerNotFound) {
			status = http.StatusNotFound
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, history)
}

func parsePageQuery(c *gin.Context) (page, size int, err error) {
	page, err = parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err = parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}
