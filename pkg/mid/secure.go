package mid

import (
	"net/http"

	"github.com/unrolled/secure"
)

// Secure sets the standard security headers. dev relaxes the HTTPS-only
// ones for local runs.
func Secure(dev bool) Middleware {
	s := secure.New(secure.Options{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		IsDevelopment:        dev,
	})
	return func(next http.Handler) http.Handler {
		return s.Handler(next)
	}
}
