package router

import (
	"team_portal_service/internal/chat/app"
	"team_portal_service/pkg/middlewares"
	"team_portal_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers everything mounted by RegisterRoutes
type Handlers struct {
	Chat      *app.ChatHandler
	Websocket *app.ChatWebsocketHandler
	Tokens    *token.Manager
	Gatherer  prometheus.Gatherer
}

// RegisterRoutes 注册 team chat 相关的路由
// @title Team Portal Chat API
// @version 1.0
// @description API documentation for the team portal realtime chat
// @host localhost:8082
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(r *fiber.App, h Handlers) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)
	if h.Gatherer != nil {
		r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	team := r.Group("/api/team")
	team.Post("/login", h.Chat.Login)

	auth := middlewares.JWTMiddleware(h.Tokens)
	team.Get("/presence", auth, h.Chat.OnlineMembers)

	chat := team.Group("/chat", auth)
	chat.Get("/", h.Chat.ListMessages)
	chat.Get("/search", h.Chat.SearchMessages)
	chat.Post("/", h.Chat.SendMessage)
	chat.Post("/upload", h.Chat.UploadFile)
	chat.Put("/:id/read", h.Chat.MarkRead)
	chat.Put("/:id", h.Chat.EditMessage)
	chat.Delete("/:id", h.Chat.DeleteMessage)

	// token 驗證在 upgrade 之前, 失敗直接 401
	r.Use("/ws", auth, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(h.Websocket.HandleConnection))
}
