package auth

import (
	"net/http"
	"time"

	"github.com/lmorrow/taskvault/internal/config"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	ResetTokenCookie   = "reset_token"
)

// CookieSink writes session tokens to the HTTP response. It abstracts how
// tokens reach the client so services never touch the ResponseWriter.
type CookieSink struct {
	cfg config.CookieConfig
}

func NewCookieSink(cfg config.CookieConfig) *CookieSink {
	return &CookieSink{cfg: cfg}
}

// SetAuthCookies sets the access/refresh pair with their respective max-ages
func (cs *CookieSink) SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessMaxAge, refreshMaxAge time.Duration) {
	cs.set(w, AccessTokenCookie, accessToken, int(accessMaxAge.Seconds()))
	cs.set(w, RefreshTokenCookie, refreshToken, int(refreshMaxAge.Seconds()))
}

// SetResetCookie exposes the password-reset capability token to the client
func (cs *CookieSink) SetResetCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	cs.set(w, ResetTokenCookie, token, int(maxAge.Seconds()))
}

// ClearAuthCookies removes the token pair
func (cs *CookieSink) ClearAuthCookies(w http.ResponseWriter) {
	cs.clear(w, AccessTokenCookie)
	cs.clear(w, RefreshTokenCookie)
}

// ClearResetCookie removes the reset capability cookie
func (cs *CookieSink) ClearResetCookie(w http.ResponseWriter) {
	cs.clear(w, ResetTokenCookie)
}

func (cs *CookieSink) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cs.cfg.Domain,
		Expires:  time.Now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true, // prevents JavaScript access
		Secure:   cs.cfg.Secure,
		SameSite: parseSameSite(cs.cfg.SameSite),
	})
}

func (cs *CookieSink) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   cs.cfg.Domain,
		MaxAge:   -1, // negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   cs.cfg.Secure,
		SameSite: parseSameSite(cs.cfg.SameSite),
	})
}

// ReadCookie retrieves a named cookie value, empty if absent
func ReadCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
