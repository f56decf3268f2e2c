package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"tokenshare-backend/internal/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb
}

func withUser(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": uuid.New().String(), "role": role})
		return c.Next()
	}
}

func TestAuthorizePermission(t *testing.T) {
	cases := []struct {
		name       string
		role       string
		permission string
		want       int
	}{
		{"admin distributes", constants.Admin, constants.DistributeProfit, 200},
		{"investor cannot distribute", constants.Investor, constants.DistributeProfit, 403},
		{"investor buys", constants.Investor, constants.BuyTokens, 200},
		{"unknown permission", constants.Admin, "launch_rockets", 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(withUser(tc.role))
			app.Get("/", AuthorizePermission(tc.permission), func(c *fiber.Ctx) error { return c.SendStatus(200) })
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/", RequireAuth(), func(c *fiber.Ctx) error { return c.SendStatus(200) })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestGetUserID(t *testing.T) {
	id := uuid.New()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Equal(t, uuid.Nil, GetUserID(c))
		c.Locals("user", map[string]interface{}{"user_id": id.String()})
		assert.Equal(t, id, GetUserID(c))
		c.Locals("user", map[string]interface{}{"user_id": "garbage"})
		assert.Equal(t, uuid.Nil, GetUserID(c))
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}

func TestHealthMarker_RecordsServerErrors(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(HealthMarker(rdb))
	app.Use(Tracing())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("kaboom") })

	for _, p := range []string{"/ok", "/boom", "/health/json"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}

	ctx := context.Background()
	total, err := rdb.Get(ctx, KeyReqTotal).Int()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	errCount, err := rdb.Get(ctx, KeyReqErrors).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, errCount)

	entries, err := rdb.LRange(ctx, KeyErrorLog, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"path":"/boom"`)
	assert.Contains(t, entries[0], `"status":500`)
}

func TestTracing_KeepsIncomingID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", id)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, id, resp.Header.Get("X-Trace-Id"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	_, perr := uuid.Parse(resp.Header.Get("X-Trace-Id"))
	assert.NoError(t, perr)
}

func TestSession_PersistsLoggedInUser(t *testing.T) {
	rdb := newRedis(t)
	app := fiber.New()
	app.Use(SessionWithClient(rdb))
	var sid string
	app.Post("/login", func(c *fiber.Ctx) error {
		sid = RegenerateSessionID(c)
		SetSessionUser(c, SessionUser{UserID: "u-1", Email: "a@b.com", Role: constants.Investor})
		return c.SendStatus(200)
	})
	app.Get("/me", func(c *fiber.Ctx) error {
		if GetUser(c) == nil {
			return c.SendStatus(401)
		}
		return c.SendStatus(200)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.NotEmpty(t, sid)

	stored, err := rdb.Get(context.Background(), SessionRedisPrefix+sid).Result()
	require.NoError(t, err)
	assert.True(t, strings.Contains(stored, `"user_id":"u-1"`))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Cookie", SessionCookieName+"=s:"+sid)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestAuthorizePermission_NoUserOrRole(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", AuthorizePermission(constants.ViewData), func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/norole", func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": uuid.NewString()})
		return c.Next()
	}, AuthorizePermission(constants.ViewData), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	resp, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	resp, err = app.Test(httptest.NewRequest("GET", "/norole", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestSessionIDFromCookie(t *testing.T) {
	assert.Equal(t, "abc", sessionIDFromCookie("s:abc"))
	assert.Equal(t, "abc", sessionIDFromCookie("s:abc.sig"))
	assert.Equal(t, "raw", sessionIDFromCookie("raw"))
	assert.Equal(t, "", sessionIDFromCookie(""))
}

func TestSession_IgnoresCorruptPayload(t *testing.T) {
	rdb := newRedis(t)
	require.NoError(t, rdb.Set(context.Background(), SessionRedisPrefix+"bad", "{not json", 0).Err())
	app := fiber.New()
	app.Use(SessionWithClient(rdb))
	app.Get("/", func(c *fiber.Ctx) error {
		if GetUser(c) != nil {
			return c.SendStatus(200)
		}
		return c.SendStatus(401)
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", SessionCookieName+"=s:bad")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}
