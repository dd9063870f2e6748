package middlewares

import (
	t_token "team_portal_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
	//TokenName get display name form token, set c.locals name
	TokenName = "name"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
)

// JWTMiddleware validates team JWT
// 依序讀取 Authorization header、query `auth`、cookie `auth_token`
func JWTMiddleware(m *t_token.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := t_token.BearerToken(c.Get(fiber.HeaderAuthorization))

		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}

		// 如果查詢參數中沒有 token，則嘗試從 Cookie 中獲取
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := m.ParseJWT(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenMemberID, claims.TeamMemberID)
		c.Locals(TokenName, claims.Name)
		c.Locals(TokenRole, claims.Role)

		return c.Next()
	}
}

// MemberID read identity set by JWTMiddleware
func MemberID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(TokenMemberID).(int64)
	return id, ok && id > 0
}
