package handlers

import (
	"context"
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/middleware"
	"github.com/saeid-a/SigmaChatSync/internal/models"
	"github.com/saeid-a/SigmaChatSync/internal/services"
	chatws "github.com/saeid-a/SigmaChatSync/internal/websocket"
	"github.com/saeid-a/SigmaChatSync/pkg/utils"
)

type chatApplicationService interface {
	Snapshot(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	SendMessage(ctx context.Context, actorID string, counterpartID string, content string) (*models.ConversationRecord, error)
}

type pushTokenRegistrar interface {
	RegisterTokenAsync(ctx context.Context, userID string)
}

type ChatHandler struct {
	service   chatApplicationService
	feed      services.Subscriber
	registrar pushTokenRegistrar
	hub       *chatws.Hub
	jwtSecret string
	baseCtx   context.Context
	log       zerolog.Logger
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// NewChatHandler wires the conversation endpoints. Views opened through the
// websocket end when their socket closes or when baseCtx is cancelled.
func NewChatHandler(
	baseCtx context.Context,
	service chatApplicationService,
	feed services.Subscriber,
	registrar pushTokenRegistrar,
	hub *chatws.Hub,
	jwtSecret string,
	log zerolog.Logger,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		feed:      feed,
		registrar: registrar,
		hub:       hub,
		jwtSecret: jwtSecret,
		baseCtx:   baseCtx,
		log:       log.With().Str("component", "chat_handler").Logger(),
	}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, ok := localUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.Snapshot(c.Context(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := localUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	conversation, err := h.service.SendMessage(c.Context(), userID, c.Params("counterpartId"), req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

// HandleWebSocket runs one conversation view for the lifetime of the socket:
// both live subscriptions, the merged list rendering and a one-off push token
// registration.
func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := chatws.NewClient(h.hub, conn, userID)

	ctx, cancel := context.WithCancel(h.baseCtx)
	defer cancel()

	h.hub.Register(client)
	go client.WritePump()

	view := services.NewConversationView(userID, h.feed, client, h.log)
	go func() {
		if err := view.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("conversation view stopped")
		}
	}()

	if h.registrar != nil {
		h.registrar.RegisterTokenAsync(ctx, userID)
	}

	client.ReadPump(ctx, h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	// Browsers cannot set headers on a websocket handshake.
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		var err error
		if tokenString, err = middleware.BearerToken(c); err != nil {
			return nil, err
		}
	}
	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrNotSignedIn):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not signed in"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
