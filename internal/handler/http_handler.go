package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retroden/netplay-service/internal/apperr"
	"github.com/retroden/netplay-service/internal/domain"
	"github.com/retroden/netplay-service/internal/service"
	"github.com/retroden/netplay-service/pkg/log"
	"github.com/retroden/netplay-service/pkg/middleware"
	"github.com/retroden/netplay-service/pkg/response"
)

// Handler handles HTTP requests for the netplay coordinator.
type Handler struct {
	netplayService service.NetplayService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(netplayService service.NetplayService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		netplayService: netplayService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes. Every netplay route requires auth;
// sessions are only visible to their members.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		sessions := api.Group("/netplay/sessions", h.authMiddleware.RequireAuth())
		{
			sessions.POST("", h.CreateSession)
			sessions.POST("/join", h.JoinSession)
			sessions.GET("/mine", h.ListMySessions)
			sessions.GET("/:id", h.GetSession)
			sessions.DELETE("/:id", h.DeleteSession)
		}
	}
}

// CreateSession creates a new netplay session hosted by the caller.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create session request")
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.netplayService.CreateSession(ctx, userID, middleware.GetNickname(c), &req)
	if err != nil {
		h.writeError(c, err, "failed to create session")
		return
	}

	response.Created(c, session)
}

// JoinSession adds the caller to the session holding the join code.
func (h *Handler) JoinSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req domain.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind join session request")
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.netplayService.JoinSession(ctx, userID, middleware.GetNickname(c), &req)
	if err != nil {
		h.writeError(c, err, "failed to join session")
		return
	}

	response.Success(c, session)
}

// GetSession retrieves one of the caller's sessions by ID.
func (h *Handler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	session, err := h.netplayService.GetSession(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to get session")
		return
	}

	response.Success(c, session)
}

// ListMySessions lists the caller's sessions.
func (h *Handler) ListMySessions(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	sessions, err := h.netplayService.ListMySessions(ctx, userID)
	if err != nil {
		h.writeError(c, err, "failed to list sessions")
		return
	}

	response.Success(c, sessions)
}

// DeleteSession closes and removes one of the caller's hosted sessions.
func (h *Handler) DeleteSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	if err := h.netplayService.DeleteSession(ctx, userID, c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete session")
		return
	}

	response.Success(c, gin.H{"deleted": true})
}

// writeError maps a tagged service error onto an HTTP response.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	code := apperr.CodeOf(err)

	message := fallback
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		message = tagged.Message
	}

	switch code {
	case apperr.CodeSessionNotFound:
		response.Error(c, http.StatusNotFound, string(code), message)
	case apperr.CodeSessionClosed, apperr.CodeSessionFull, apperr.CodeAlreadyJoined:
		response.Error(c, http.StatusConflict, string(code), message)
	case apperr.CodeInvalidJoinCode:
		response.Error(c, http.StatusBadRequest, string(code), message)
	case apperr.CodeUnauthorized:
		response.Error(c, http.StatusForbidden, string(code), message)
	case apperr.CodeMaxActiveSessions:
		response.TooManyRequests(c, string(code), message)
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(fallback)
		response.Error(c, http.StatusInternalServerError, string(apperr.CodeUnknown), fallback)
	}
}
