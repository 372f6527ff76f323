// Package api 提供 HTTP 旁路介面：建立對局、查詢狀態與歸檔、健康檢查，以及 WebSocket 入口。
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koopa0/system-design/14-chess-session/internal/archive"
	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/internal/transport"
	apperrors "github.com/koopa0/system-design/14-chess-session/pkg/errors"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

// Handler HTTP 請求處理器
type Handler struct {
	coord   *session.Coordinator
	hub     *transport.Hub
	archive archive.Store // nil 表示未啟用歸檔
	logger  *slog.Logger
	started time.Time
	extras  map[string]func() any
}

// NewHandler 創建 HTTP 處理器；store 可為 nil
func NewHandler(coord *session.Coordinator, hub *transport.Hub, store archive.Store, logger *slog.Logger) *Handler {
	return &Handler{
		coord:   coord,
		hub:     hub,
		archive: store,
		logger:  logger,
		started: time.Now(),
		extras:  make(map[string]func() any),
	}
}

// WithStats 在 /stats 加入額外的統計區塊
func (h *Handler) WithStats(name string, fn func() any) *Handler {
	h.extras[name] = fn
	return h
}

// Routes 設定路由
func (h *Handler) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(h.recovered), h.requestLogger())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", h.createSession)
		v1.GET("/sessions", h.listSessions)
		v1.GET("/sessions/:id", h.getSession)
		v1.GET("/archive", h.listArchive)
		v1.GET("/archive/:id", h.getArchive)
	}

	// 舊版前端使用的建立入口
	r.GET("/create-room", h.createRoomLegacy)

	r.GET("/ws", h.serveWS)
	r.GET("/health", h.health)
	r.GET("/stats", h.stats)

	return r
}

func (h *Handler) createSession(c *gin.Context) {
	id, err := h.coord.CreateSession()
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (h *Handler) createRoomLegacy(c *gin.Context) {
	id, err := h.coord.CreateSession()
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions := h.coord.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (h *Handler) getSession(c *gin.Context) {
	snap, err := h.coord.Session(c.Param("id"))
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) listArchive(c *gin.Context) {
	if h.archive == nil {
		h.errorResponse(c, apperrors.ErrArchiveDisabled)
		return
	}

	limit := defaultArchiveLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorResponse(c, apperrors.New(apperrors.ErrCodeInvalidInput, "limit 必須是正整數").WithDetails(raw))
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	games, err := h.archive.List(c.Request.Context(), limit)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"total": len(games),
	})
}

func (h *Handler) getArchive(c *gin.Context) {
	if h.archive == nil {
		h.errorResponse(c, apperrors.ErrArchiveDisabled)
		return
	}

	g, err := h.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) serveWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) stats(c *gin.Context) {
	body := gin.H{
		"sessions":    h.coord.Stats(),
		"connections": h.hub.ConnectionCount(),
	}
	for name, fn := range h.extras {
		body[name] = fn()
	}
	c.JSON(http.StatusOK, body)
}

// errorResponse 依錯誤碼對應 HTTP 狀態
func (h *Handler) errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsInvalidInput(err):
		status = http.StatusBadRequest
	case apperrors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("處理請求失敗", "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": "內部伺服器錯誤", "code": apperrors.ErrCodeInternal})
		return
	}

	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	c.JSON(status, body)
}

// recovered panic 恢復
func (h *Handler) recovered(c *gin.Context, recovered any) {
	h.logger.Error("處理請求時發生 panic",
		"error", recovered,
		"method", c.Request.Method,
		"path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "內部伺服器錯誤", "code": apperrors.ErrCodeInternal})
}

// requestLogger 請求日誌
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		h.logger.Info("HTTP 請求",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
