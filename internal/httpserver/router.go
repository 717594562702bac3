package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/workhub/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/workhub/internal/middleware/logging"
)

type Deps struct {
	Auth    *AuthHTTP
	Profile *ProfileHTTP
	// OAuth is nil when Google sign-in is not configured.
	OAuth *OAuthHTTP

	RequireAuth echo.MiddlewareFunc
	Realtime    http.Handler
	Metrics     http.Handler
	Ready       func(ctx context.Context) error

	// AllowedOrigins lists the browser origins allowed to call the API
	// with credentials.
	AllowedOrigins []string
}

// New builds an Echo instance with the common middleware chain.
func New(logger *slog.Logger, allowedOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		loggingmw.RequestLogger(logger),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     allowedOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		}),
	)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	auth := e.Group("/auth")
	auth.POST("/signup", d.Auth.Signup)
	auth.POST("/verify-otp", d.Auth.VerifyOTP)
	auth.POST("/resend-otp", d.Auth.ResendOTP)
	auth.POST("/login", d.Auth.Login)

	// Endpoints that act on the refresh cookie alone.
	cookieAuth := auth.Group("", csrf.OriginGuard(d.AllowedOrigins))
	cookieAuth.GET("/refresh", d.Auth.Refresh)
	cookieAuth.POST("/logout", d.Auth.Logout)

	if d.OAuth != nil {
		auth.GET("/google", d.OAuth.Start)
		auth.GET("/google/callback", d.OAuth.Callback)
	}

	api := e.Group("/api", d.RequireAuth)
	api.GET("/users/me", d.Profile.Me)
	api.PATCH("/users/me", d.Profile.UpdateMe)

	if d.Realtime != nil {
		e.GET("/ws", echo.WrapHandler(d.Realtime))
	}
}
