package sessiontransport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/redisession/core/cookie"
)

// Config holds transport configuration. The zero value is completed by
// defaultConfig; use the functional options to modify it.
type Config struct {
	// CookieName is the session cookie name.
	CookieName string

	// CookieOptions are applied to every session cookie the transport sets,
	// on top of the cookie manager's defaults.
	CookieOptions []cookie.Option

	// CookieOnException controls whether a session cookie is still set when
	// the response status is 500 or above. Deleting a stale cookie is never
	// suppressed.
	CookieOnException bool

	// CheckResponseAllowCookies can veto all cookie headers for a response,
	// based on the headers the handler produced. See
	// AllowCookiesUnlessCacheable for a ready-made implementation.
	CheckResponseAllowCookies func(http.Header) bool

	// Logger receives finalize and cookie errors. Defaults to a discarding
	// logger.
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		CookieName:        "session",
		CookieOnException: true,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring the transport.
type Option func(*Config)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.CookieName = name
		}
	}
}

// WithCookieOptions sets per-cookie attributes applied on every emit.
func WithCookieOptions(opts ...cookie.Option) Option {
	return func(c *Config) {
		c.CookieOptions = opts
	}
}

// WithCookieOnException controls Set-Cookie behavior for 5xx responses.
func WithCookieOnException(enabled bool) Option {
	return func(c *Config) {
		c.CookieOnException = enabled
	}
}

// WithAllowCookiesCheck installs a response-level cookie veto.
func WithAllowCookiesCheck(fn func(http.Header) bool) Option {
	return func(c *Config) {
		c.CheckResponseAllowCookies = fn
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// slogError is the single attribute shape used for error logging here.
func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
