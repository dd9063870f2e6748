package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"
	"team_portal_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHandler team chat REST API
type ChatHandler struct {
	messages *MessageUseCase
	auth     *AuthUseCase
	presence PresenceRegistry
}

// NewChatHandler create ChatHandler
func NewChatHandler(messages *MessageUseCase, auth *AuthUseCase, presence PresenceRegistry) *ChatHandler {
	return &ChatHandler{messages: messages, auth: auth, presence: presence}
}

type sendMessageBody struct {
	Message string  `json:"message"`
	ReplyTo *uint64 `json:"replyTo"`
}

type editMessageBody struct {
	Message string `json:"message"`
}

// ConnectCheck check api connect start
// @Summary Check chat service status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging
// @Tags Shared
// @Param service query string false "Service name"
// @Param status query bool true "Debug status"
// @Success 200 {string} string "Service debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	service := query.Get("service")
	statusStr := query.Get("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("service[%s]: debug mode is : %t", service, logger.Log.IsDebugMode()))
}

// Login team member login
// @Summary Team member login
// @Description Check email / password and issue a team JWT
// @Tags Team
// @Accept json
// @Produce json
// @Param loginRequest body domain.LoginRequest true "Login credentials"
// @Success 200 {object} domain.LoginResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Invalid credentials"
// @Router /api/team/login [post]
func (h *ChatHandler) Login(c *fiber.Ctx) error {
	var req domain.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request payload"})
	}

	resp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(resp)
}

// ListMessages chat history
// @Summary List team chat messages
// @Description Chronological page of team chat; with search set, most recent matches first
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param search query string false "Substring filter"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Page offset" default(0)
// @Success 200 {array} domain.EnrichedMessage
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to fetch messages"
// @Router /api/team/chat [get]
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	if _, ok := middlewares.MemberID(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	msgs, err := h.messages.List(c.UserContext(), domain.ListFilter{
		Search: c.Query("search"),
		Limit:  c.QueryInt("limit", domain.DefaultListLimit),
		Offset: c.QueryInt("offset", 0),
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(msgs)
}

// SearchMessages search chat
// @Summary Search team chat messages
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search query"
// @Param limit query int false "Max results" default(20)
// @Success 200 {array} domain.EnrichedMessage
// @Failure 400 {object} map[string]string "Search query required"
// @Router /api/team/chat/search [get]
func (h *ChatHandler) SearchMessages(c *fiber.Ctx) error {
	if _, ok := middlewares.MemberID(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	msgs, err := h.messages.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", domain.DefaultSearchLimit))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(msgs)
}

// SendMessage post a text message
// @Summary Send team chat message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body sendMessageBody true "Message"
// @Success 201 {object} domain.EnrichedMessage
// @Failure 400 {object} map[string]string "Message is required"
// @Failure 503 {object} map[string]string "Store timeout"
// @Router /api/team/chat [post]
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req sendMessageBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request payload"})
	}

	msg, err := h.messages.Send(c.UserContext(), memberID, req.Message, req.ReplyTo)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// UploadFile post a message with attachment
// @Summary Upload a file to team chat
// @Tags Chat
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Attachment"
// @Param message formData string false "Caption"
// @Param replyTo formData int false "Reply to message id"
// @Success 201 {object} domain.EnrichedMessage
// @Failure 400 {object} map[string]string "No file uploaded"
// @Router /api/team/chat/upload [post]
func (h *ChatHandler) UploadFile(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No file uploaded"})
	}

	var replyTo *uint64
	if v := strings.TrimSpace(c.FormValue("replyTo")); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid replyTo"})
		}
		replyTo = &id
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read file"})
	}
	defer f.Close()

	msg, err := h.messages.SendFile(c.UserContext(), memberID, c.FormValue("message"), replyTo, FileUpload{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Reader:      f,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditMessage edit own message
// @Summary Edit team chat message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Param body body editMessageBody true "New content"
// @Success 200 {object} domain.EnrichedMessage
// @Failure 403 {object} map[string]string "Only the sender can edit"
// @Failure 404 {object} map[string]string "Message not found"
// @Router /api/team/chat/{id} [put]
func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := messageID(c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req editMessageBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request payload"})
	}

	msg, err := h.messages.Edit(c.UserContext(), memberID, id, req.Message)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage delete own message
// @Summary Delete team chat message
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string "Only the sender can delete"
// @Failure 404 {object} map[string]string "Message not found"
// @Router /api/team/chat/{id} [delete]
func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := messageID(c)
	if err != nil {
		return errorResponse(c, err)
	}

	if err := h.messages.Delete(c.UserContext(), memberID, id); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "messageId": id})
}

// MarkRead mark message read
// @Summary Mark team chat message read
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Message ID"
// @Success 200 {object} domain.ReadReceipt
// @Failure 404 {object} map[string]string "Message not found"
// @Router /api/team/chat/{id}/read [put]
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	memberID, ok := middlewares.MemberID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := messageID(c)
	if err != nil {
		return errorResponse(c, err)
	}

	receipt, err := h.messages.MarkRead(c.UserContext(), memberID, id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(receipt)
}

// OnlineMembers presence snapshot
// @Summary Online team members
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.OnlineMembersPayload
// @Router /api/team/presence [get]
func (h *ChatHandler) OnlineMembers(c *fiber.Ctx) error {
	return c.JSON(domain.OnlineMembersPayload{Members: h.presence.Snapshot()})
}

func messageID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errprocess.Validation("invalid message id")
	}
	return id, nil
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := errprocess.StatusCode(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("chat api failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
