package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTokenHeader carries the token on state-changing requests.
const CSRFTokenHeader = "X-CSRF-Token"

const csrfContextKey = "csrf_token"

// CSRFMiddleware protects cookie-authenticated requests against cross-site
// forgery. Requests carrying a valid bearer token are exempt because the
// browser never attaches one on its own, as are the listed paths.
func CSRFMiddleware(secret []byte, secure bool, authService *Service, exemptPaths ...string) gin.HandlerFunc {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	protect := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteStrictMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		if hasValidBearer(c, authService) {
			c.Next()
			return
		}

		passed := false
		handler := protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Set(csrfContextKey, csrf.Token(r))
			c.Request = r
			c.Next()
		}))

		r := c.Request
		if !secure {
			r = csrf.PlaintextHTTPRequest(r)
		}
		if exempt[r.URL.Path] {
			r = csrf.UnsafeSkipCheck(r)
		}
		handler.ServeHTTP(c.Writer, r)
		if !passed {
			c.Abort()
		}
	}
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"CSRF token invalid or missing"}`))
}

func hasValidBearer(c *gin.Context, authService *Service) bool {
	token, ok := bearerToken(c)
	if !ok || authService == nil {
		return false
	}
	_, err := authService.ValidateToken(c.Request.Context(), token)
	return err == nil
}

// GetCSRFToken returns the masked token for the current request.
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}
