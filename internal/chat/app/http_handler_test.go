package app

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"
	"team_portal_service/pkg/middlewares"
	"team_portal_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	*pipelineFixture
	presence PresenceRegistry
	app      *fiber.App
}

// 以固定身份取代 JWT middleware
func newHandlerFixture(memberID int64) *handlerFixture {
	f := &handlerFixture{pipelineFixture: newPipelineFixture(), presence: NewPresenceRegistry()}
	h := NewChatHandler(f.uc, NewAuthUseCase(f.members, token.NewManager("secret", "test", time.Hour)), f.presence)

	f.app = fiber.New()
	f.app.Post("/api/team/login", h.Login)
	api := f.app.Group("/api/team", func(c *fiber.Ctx) error {
		if memberID > 0 {
			c.Locals(middlewares.TokenMemberID, memberID)
		}
		return c.Next()
	})
	api.Get("/chat", h.ListMessages)
	api.Get("/chat/search", h.SearchMessages)
	api.Post("/chat", h.SendMessage)
	api.Post("/chat/upload", h.UploadFile)
	api.Put("/chat/:id", h.EditMessage)
	api.Delete("/chat/:id", h.DeleteMessage)
	api.Put("/chat/:id/read", h.MarkRead)
	api.Get("/presence", h.OnlineMembers)
	return f
}

func (f *handlerFixture) do(t *testing.T, req *http.Request) (int, map[string]interface{}, []byte) {
	t.Helper()
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var obj map[string]interface{}
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func TestChatHandler_SendMessage(t *testing.T) {
	f := newHandlerFixture(1)
	f.repo.On("Append", mock.Anything, domain.NewMessage{SenderID: 1, Body: "hello"}).Return(storedMessage(5, 1, "hello"), nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice", Role: "ceo"}, nil)

	status, body, _ := f.do(t, jsonRequest(http.MethodPost, "/api/team/chat", fiber.Map{"message": "hello"}))
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(5), body["id"])
	assert.Equal(t, "Alice", body["senderName"])
	require.Len(t, f.notifier.Events(), 1)
}

func TestChatHandler_SendMessageErrors(t *testing.T) {
	f := newHandlerFixture(1)
	status, body, _ := f.do(t, jsonRequest(http.MethodPost, "/api/team/chat", fiber.Map{"message": " "}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "message is required", body["error"])

	anon := newHandlerFixture(0)
	status, _, _ = anon.do(t, jsonRequest(http.MethodPost, "/api/team/chat", fiber.Map{"message": "hi"}))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Empty(t, anon.notifier.Events())
}

func TestChatHandler_ListMessages(t *testing.T) {
	f := newHandlerFixture(1)
	f.repo.On("List", mock.Anything, domain.ListFilter{Search: "lunch", Limit: 10, Offset: 20}).
		Return([]domain.Message{*storedMessage(1, 2, "lunch?")}, nil)
	f.members.On("FindByID", mock.Anything, int64(2)).Return(&domain.Member{ID: 2, Name: "Bob"}, nil)

	status, _, raw := f.do(t, httptest.NewRequest(http.MethodGet, "/api/team/chat?search=lunch&limit=10&offset=20", nil))
	require.Equal(t, http.StatusOK, status)

	var msgs []domain.EnrichedMessage
	require.NoError(t, json.Unmarshal(raw, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bob", msgs[0].SenderName)
}

func TestChatHandler_SearchMessages(t *testing.T) {
	f := newHandlerFixture(1)
	status, _, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/api/team/chat/search", nil))
	assert.Equal(t, http.StatusBadRequest, status)

	f.repo.On("List", mock.Anything, domain.ListFilter{Search: "deploy", Limit: domain.DefaultSearchLimit}).Return([]domain.Message{}, nil)
	status, _, raw := f.do(t, httptest.NewRequest(http.MethodGet, "/api/team/chat/search?q=deploy", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(raw))
}

func TestChatHandler_EditMessage(t *testing.T) {
	f := newHandlerFixture(2)
	f.repo.On("Edit", mock.Anything, uint64(1), "hacked", int64(2)).Return(nil, errprocess.Authorization("only the sender can edit this message"))
	f.repo.On("Edit", mock.Anything, uint64(9), "x", int64(2)).Return(nil, errprocess.NotFound("message not found"))

	status, _, _ := f.do(t, jsonRequest(http.MethodPut, "/api/team/chat/1", fiber.Map{"message": "hacked"}))
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = f.do(t, jsonRequest(http.MethodPut, "/api/team/chat/9", fiber.Map{"message": "x"}))
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = f.do(t, jsonRequest(http.MethodPut, "/api/team/chat/abc", fiber.Map{"message": "x"}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Empty(t, f.notifier.Events())
}

func TestChatHandler_DeleteMessage(t *testing.T) {
	f := newHandlerFixture(1)
	f.repo.On("Delete", mock.Anything, uint64(3), int64(1)).Return(true, nil)

	status, body, _ := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/team/chat/3", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["messageId"])

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMessageDeleted, events[0].Type)
}

func TestChatHandler_MarkRead(t *testing.T) {
	f := newHandlerFixture(3)
	f.repo.On("MarkRead", mock.Anything, uint64(4), int64(3)).Return(&domain.ReadReceipt{ID: 1, MessageID: 4, MemberID: 3}, nil)

	status, _, _ := f.do(t, httptest.NewRequest(http.MethodPut, "/api/team/chat/4/read", nil))
	assert.Equal(t, http.StatusOK, status)
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReadUpdatePayload{MessageID: 4, ReadBy: 3}, events[0].Payload)
}

func TestChatHandler_UploadFile(t *testing.T) {
	f := newHandlerFixture(1)
	f.blobs.On("Put", mock.Anything, "plan.pdf", mock.Anything, int64(4), mock.Anything).Return("http://minio/chat/plan.pdf", nil)
	f.repo.On("Append", mock.Anything, mock.MatchedBy(func(in domain.NewMessage) bool {
		return in.Attachment != nil && in.Attachment.URL == "http://minio/chat/plan.pdf" && in.ReplyTo != nil && *in.ReplyTo == 7
	})).Return(storedMessage(8, 1, "Sent a file: plan.pdf"), nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "plan.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, w.WriteField("replyTo", "7"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/team/chat/upload", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())

	status, body, _ := f.do(t, req)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(8), body["id"])
	f.blobs.AssertExpectations(t)
}

func TestChatHandler_UploadWithoutFile(t *testing.T) {
	f := newHandlerFixture(1)
	status, body, _ := f.do(t, jsonRequest(http.MethodPost, "/api/team/chat/upload", fiber.Map{}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No file uploaded", body["error"])
}

func TestChatHandler_OnlineMembers(t *testing.T) {
	f := newHandlerFixture(1)
	f.presence.Join(2, "h2")
	f.presence.Join(1, "h1")

	status, _, raw := f.do(t, httptest.NewRequest(http.MethodGet, "/api/team/presence", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"members":[1,2]}`, string(raw))
}

func TestChatHandler_Login(t *testing.T) {
	f := newHandlerFixture(0)
	f.members.On("FindByEmail", mock.Anything, "nobody@team.io").Return(nil, errprocess.NotFound("no member"))

	status, _, _ := f.do(t, jsonRequest(http.MethodPost, "/api/team/login", domain.LoginRequest{Email: "nobody@team.io", Password: "x"}))
	assert.Equal(t, http.StatusForbidden, status)

	req := httptest.NewRequest(http.MethodPost, "/api/team/login", bytes.NewReader([]byte("{")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	status, _, _ = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDebugLogFlag(t *testing.T) {
	app := fiber.New()
	app.Post("/debug", DebugLogFlag)
	app.Get("/", ConnectCheck)

	defer logger.Log.SetDebugMode(false)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/debug?service=chat&status=true", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "service[chat]: debug mode is : true", string(body))
	assert.True(t, logger.Log.IsDebugMode())

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/debug?status=maybe", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
