package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

const (
	userContextKey = "user"

	userCacheSize = 4096
	userCacheTTL  = 5 * time.Minute
)

type cachedUser struct {
	user      *engine.User
	fetchedAt time.Time
}

// Authenticator resolves "Authorization: TOKEN <api_key>" headers to
// users. Resolved active users sit in an LRU for a few minutes to keep
// hot trading paths off the users table; the cache is advisory, so a
// deactivation takes at most the TTL to propagate.
type Authenticator struct {
	users  engine.UserStore
	cache  *lru.Cache
	logger *zap.Logger
}

func NewAuthenticator(users engine.UserStore, logger *zap.Logger) *Authenticator {
	cache, err := lru.New(userCacheSize)
	if err != nil {
		panic(err)
	}
	return &Authenticator{
		users:  users,
		cache:  cache,
		logger: logger,
	}
}

// Middleware authenticates every request passing through it.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return unauthorized(c, "missing Authorization header")
			}

			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "token") {
				return unauthorized(c, "expected 'TOKEN <api_key>'")
			}

			user, err := a.resolve(c, parts[1])
			if err != nil {
				if errors.Is(err, engine.ErrNotFound) {
					return unauthorized(c, "unknown api key")
				}
				a.logger.Error("auth lookup failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
			}
			if !user.Active {
				return unauthorized(c, "user is deactivated")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

func (a *Authenticator) resolve(c echo.Context, apiKey string) (*engine.User, error) {
	if v, ok := a.cache.Get(apiKey); ok {
		entry := v.(*cachedUser)
		if time.Since(entry.fetchedAt) < userCacheTTL {
			return entry.user, nil
		}
		a.cache.Remove(apiKey)
	}

	user, err := a.users.GetByAPIKey(c.Request().Context(), apiKey)
	if err != nil {
		return nil, err
	}
	if user.Active {
		// Inactive users are not cached so reactivation shows up
		// immediately.
		a.cache.Add(apiKey, &cachedUser{user: user, fetchedAt: time.Now()})
	}
	return user, nil
}

// Forget drops one api key from the cache.
func (a *Authenticator) Forget(apiKey string) {
	a.cache.Remove(apiKey)
}

// RequireAdmin rejects requests whose authenticated user is not an
// admin. It must sit behind the auth middleware.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil || user.Role != engine.RoleAdmin {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "admin access required",
				})
			}
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated user, nil outside the auth
// middleware.
func CurrentUser(c echo.Context) *engine.User {
	if u, ok := c.Get(userContextKey).(*engine.User); ok {
		return u
	}
	return nil
}

func unauthorized(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":  "not authenticated",
		"detail": detail,
	})
}
