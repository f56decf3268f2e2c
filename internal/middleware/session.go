package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig for the Redis-backed session cookie.
type SessionConfig struct {
	Secret            string
	RedisURL          string
	CookieDomain      string
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	SessionCookieName  = "tokenshare.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session returns a Fiber middleware that loads/saves session from Redis,
// along with the client it opened.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)
	return SessionWithClient(rdb), rdb, nil
}

// SessionWithClient is Session over an existing client.
func SessionWithClient(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := sessionIDFromCookie(c.Cookies(SessionCookieName))
		data := loadSession(c.UserContext(), rdb, sessionID)

		c.Locals("session_data", data)
		c.Locals("user", data["user"])
		c.Locals("session_id", sessionID)

		if err := c.Next(); err != nil {
			return err
		}
		saveSession(c, rdb)
		return nil
	}
}

// sessionIDFromCookie accepts "s:<id>" or "s:<id>.<signature>" and bare ids.
func sessionIDFromCookie(v string) string {
	if !strings.HasPrefix(v, "s:") {
		return v
	}
	id, _, _ := strings.Cut(v[2:], ".")
	return id
}

func loadSession(ctx context.Context, rdb *redis.Client, sessionID string) map[string]interface{} {
	data := map[string]interface{}{}
	if sessionID == "" {
		return data
	}
	b, err := rdb.Get(ctx, SessionRedisPrefix+sessionID).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("session load failed")
		}
		return data
	}
	if err := json.Unmarshal(b, &data); err != nil {
		log.Warn().Err(err).Msg("session payload unreadable")
		return map[string]interface{}{}
	}
	return data
}

// saveSession persists sessions that carry a user and renews their TTL.
func saveSession(c *fiber.Ctx, rdb *redis.Client) {
	sid, _ := c.Locals("session_id").(string)
	data, _ := c.Locals("session_data").(map[string]interface{})
	if sid == "" || data == nil || data["user"] == nil {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("session encode failed")
		return
	}
	if err := rdb.Set(c.UserContext(), SessionRedisPrefix+sid, b, sessionMaxAge).Err(); err != nil {
		log.Error().Err(err).Msg("session save failed")
	}
}

// GetSessionID returns the current session ID from context (for login/logout).
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}

// SetSessionUser sets the user in the session and marks session for save.
// Call after login/register; use RegenerateSessionID first to get a new id.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"user_id":  user.UserID,
		"fullname": user.Fullname,
		"email":    user.Email,
		"role":     user.Role,
	}
	c.Locals("session_data", data)
	c.Locals("user", data["user"])
}

// RegenerateSessionID creates a new session ID and sets it in Locals; the
// handler sets the cookie to "s:"+id.
func RegenerateSessionID(c *fiber.Ctx) string {
	newID := uuid.New().String()
	c.Locals("session_id", newID)
	return newID
}

// DestroySession clears user and session data from Locals; caller must clear cookie and Redis.
func DestroySession(c *fiber.Ctx) {
	c.Locals("session_data", make(map[string]interface{}))
	c.Locals("user", nil)
}

// SessionCookieConfig returns the session cookie options.
func SessionCookieConfig(cfg SessionConfig) fiber.Cookie {
	sameSite := "Lax"
	if cfg.AllowCrossSiteDev {
		sameSite = "None"
	}
	secure := cfg.IsProduction && cfg.AllowCrossSiteDev
	return fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   int(sessionMaxAge.Seconds()),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
