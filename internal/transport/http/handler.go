// Package http provides the HTTP handlers for the assistant service.
package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/initialize", h.Initialize)
	e.POST("/message", h.HandleMessage)
	e.POST("/process_images", h.ProcessImages)
	e.POST("/clear", h.Clear)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Initialize ensures a session exists for the user.
// POST /initialize
func (h *Handler) Initialize(c echo.Context) error {
	var req domain.InitializeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	sessionID, err := h.svc.Initialize(c.Request().Context(), req.UserID)
	if err != nil {
		log.Printf("ERROR: failed to initialize user %s: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to initialize user"})
	}

	return c.JSON(http.StatusOK, domain.InitializeResponse{
		Status:    "success",
		SessionID: sessionID,
	})
}

// HandleMessage processes one conversational turn.
// POST /message
func (h *Handler) HandleMessage(c echo.Context) error {
	var req domain.MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" || req.Message == nil || req.Message.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
	}

	turns, err := h.svc.HandleMessage(c.Request().Context(), req.UserID, *req.Message)
	if err != nil {
		log.Printf("ERROR: failed to handle message for user %s: %v", req.UserID, err)
		if errors.Is(err, service.ErrUpstream) {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "model backend unavailable"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process message"})
	}

	return c.JSON(http.StatusOK, domain.MessageResponse{Response: turns})
}

// ProcessImages interprets submitted images and returns one combined
// response.
// POST /process_images
func (h *Handler) ProcessImages(c echo.Context) error {
	var req domain.ProcessImagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" || len(req.Images) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and images are required"})
	}

	turns, processed, err := h.svc.ProcessImages(c.Request().Context(), req.UserID, req.Images)
	if err != nil {
		log.Printf("ERROR: failed to process images for user %s: %v", req.UserID, err)
		if errors.Is(err, service.ErrUpstream) {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "model backend unavailable"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process images"})
	}

	return c.JSON(http.StatusOK, domain.ProcessImagesResponse{
		Response:             turns,
		ProcessedImagesCount: processed,
	})
}

// Clear purges all data for the user. Always 200, even when the user
// had no data.
// POST /clear
func (h *Handler) Clear(c echo.Context) error {
	var req domain.ClearRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	if err := h.svc.Clear(c.Request().Context(), req.UserID); err != nil {
		log.Printf("ERROR: failed to clear data for user %s: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to clear user data"})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "All data cleared for user " + req.UserID,
	})
}
