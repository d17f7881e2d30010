package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ahmetk3436/ppmchat/internal/assistant"
	"github.com/ahmetk3436/ppmchat/internal/conversation"
)

// maxMessageLength bounds a single chat message.
const maxMessageLength = 4000

type ChatHandler struct {
	bot *assistant.Assistant
}

func NewChatHandler(bot *assistant.Assistant) *ChatHandler {
	return &ChatHandler{bot: bot}
}

type chatRequest struct {
	Message   string                `json:"message"`
	SessionID string                `json:"session_id"`
	Page      *conversation.PageRef `json:"page,omitempty"`
}

// sessionFor picks the conversation a request belongs to. A verified caller
// always gets the session bound to their token.
func sessionFor(owned any, requested string) string {
	if id, ok := owned.(string); ok && id != "" {
		return id
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return uuid.NewString()
}

// Chat answers one message. The reply always comes back with status 200;
// failures are reported in the response body.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Message is required",
		})
	}
	if len(req.Message) > maxMessageLength {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error":   true,
			"message": "Message is too long",
		})
	}

	sessionID := sessionFor(c.Locals("session_id"), req.SessionID)
	if req.Page != nil {
		h.bot.SetPage(sessionID, *req.Page)
	}

	return c.JSON(h.bot.HandleMessage(c.UserContext(), req.Message, sessionID))
}

// UpgradeCheck rejects plain HTTP requests on the WebSocket route.
func (h *ChatHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Stream serves a chat over one WebSocket. Each text frame carries a
// chatRequest and is answered with one Response frame, in order.
func (h *ChatHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sessionID := sessionFor(conn.Locals("session_id"), conn.Query("session_id"))
		slog.Info("Chat stream opened", "session_id", sessionID)

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			var req chatRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				// Plain text frames are treated as the message itself.
				req.Message = string(msg)
			}
			if strings.TrimSpace(req.Message) == "" || len(req.Message) > maxMessageLength {
				if err := conn.WriteJSON(fiber.Map{"error": true, "message": "Message is required"}); err != nil {
					break
				}
				continue
			}
			if req.Page != nil {
				h.bot.SetPage(sessionID, *req.Page)
			}

			resp := h.bot.HandleMessage(context.Background(), req.Message, sessionID)
			if err := conn.WriteJSON(resp); err != nil {
				slog.Warn("Chat stream write failed", "session_id", sessionID, "error", err)
				break
			}
		}

		slog.Info("Chat stream closed", "session_id", sessionID)
	})
}
