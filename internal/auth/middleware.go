package auth

import (
	"errors"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalUserID is the fiber.Ctx locals key holding the authenticated user id.
const LocalUserID = "user_id"

// TokenFromRequest reads the bearer credential from the Authorization
// header, then the token cookie, then the token query parameter. Browsers
// cannot set headers on a websocket handshake, hence the fallbacks.
func TokenFromRequest(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if tok, err := ParseBearerToken(h); err == nil {
			return tok
		}
		return ""
	}
	if tok := c.Cookies("token"); tok != "" {
		return tok
	}
	return c.Query("token")
}

// Middleware authenticates the request and stores the user id in locals.
func Middleware(r *Resolver, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := TokenFromRequest(c)
		if tok == "" {
			return utils.JSONError(c, fiber.StatusUnauthorized, "unauthenticated", "missing credentials")
		}
		uid, err := r.Resolve(c.UserContext(), tok)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				return utils.JSONError(c, fiber.StatusUnauthorized, "unauthenticated", "invalid credentials")
			}
			log.Errorw("resolve credentials", "path", c.Path(), "err", err)
			return utils.JSONFromError(c, err)
		}
		c.Locals(LocalUserID, uid)
		return c.Next()
	}
}

// UserID returns the id stored by Middleware.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(LocalUserID).(string)
	return uid
}
