package handler

import (
	"errors"
	"net/http"
	"strings"

	"token-service/internal/auth"
	"token-service/internal/auth/flow"
	"token-service/internal/auth/token"
	"token-service/internal/logger"
	"token-service/internal/tokenstore"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the public surface: authorize, callback and token,
// plus status and disconnect for the host application.
type Handler struct {
	flow       *flow.Controller
	engine     *token.Engine
	tokenStore tokenstore.Store
}

func NewHandler(
	fc *flow.Controller,
	engine *token.Engine,
	store tokenstore.Store,
) *Handler {
	return &Handler{
		flow:       fc,
		engine:     engine,
		tokenStore: store,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, requireKey gin.HandlerFunc) {
	r.GET("/oauth/authorize", h.authorize)
	r.GET("/oauth/callback", h.callback)

	api := r.Group("/api")
	api.Use(requireKey)
	api.GET("/token", h.getToken)
	api.GET("/status", h.status)
	api.DELETE("/token", h.disconnect)
}

func (h *Handler) authorize(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}

	authURL, err := h.flow.Initiate(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, flow.ErrConfig) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "oauth not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start authorization"})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	requestID := uuid.NewString()

	errParam := c.Query("error")
	if errParam != "" {
		logger.Warn("oauth callback returned error", map[string]any{
			"request_id": requestID,
			"error":      errParam,
			"desc":       c.Query("error_description"),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization was not granted"})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	userID := c.Query("user_id")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	err := h.flow.Callback(c.Request.Context(), userID, code, state)
	if err != nil {
		if errors.Is(err, flow.ErrInvalidState) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired state"})
			return
		}

		var exchangeErr *flow.ExchangeError
		if errors.As(err, &exchangeErr) {
			logger.Warn("code exchange rejected", map[string]any{
				"request_id":    requestID,
				"provider_code": exchangeErr.ProviderCode,
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		logger.Error("oauth callback failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete authorization"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}

func (h *Handler) getToken(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}

	scopes := splitScopes(c.Query("scopes"))

	payload, err := h.engine.GetValidAccessToken(c.Request.Context(), userID, scopes)
	if err != nil {
		h.writeTokenError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

// writeTokenError maps the engine taxonomy onto the HTTP surface:
// connect/reconnect guidance for terminal kinds, a generic retryable
// failure for everything transient.
func (h *Handler) writeTokenError(c *gin.Context, userID string, err error) {
	kind := token.KindOf(err)

	switch {
	case token.NeedsConnect(err):
		message := "please connect your account"
		if kind == token.KindInteractionRequired {
			message = "please reconnect your account"
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   kind.String(),
			"message": message,
		})
	case kind == token.KindConfig:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   kind.String(),
			"message": "service is not configured",
		})
	default:
		logger.Warn("token acquisition failed", map[string]any{
			"user_id": userID,
			"kind":    kind.String(),
			"error":   err.Error(),
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     token.KindRefreshFailed.String(),
			"message":   "temporary failure, retry later",
			"retryable": token.Retryable(err),
		})
	}
}

func (h *Handler) status(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}

	// Status is a plain store read; it never triggers a refresh.
	rec, err := h.tokenStore.Get(c.Request.Context(), userID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	resp := gin.H{
		"connected":  true,
		"updated_at": rec.UpdatedAt,
	}
	if account, err := auth.UnmarshalAccount(rec.Account); err == nil && account.PrincipalName != "" {
		resp["principal_name"] = account.PrincipalName
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) disconnect(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}

	if err := h.tokenStore.Delete(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}

	logger.Info("account disconnected", map[string]any{
		"user_id": userID,
	})

	c.Status(http.StatusNoContent)
}

func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
