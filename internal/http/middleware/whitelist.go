package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AllowList returns a middleware admitting requests whose Origin is in
// origins or whose client IP is in ips, and answering 403 otherwise. Origins
// compare case-insensitively without trailing slashes. Empty lists admit
// nobody.
func AllowList(origins, ips []string) gin.HandlerFunc {
	allowedOrigins := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = normOrigin(o); o != "" {
			allowedOrigins[o] = struct{}{}
		}
	}
	allowedIPs := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowedIPs[ip] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := normOrigin(c.GetHeader("Origin"))
		if _, ok := allowedOrigins[origin]; ok && origin != "" {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if _, ok := allowedIPs[ip]; ok {
			c.Next()
			return
		}
		log.Warn().Str("origin", origin).Str("ip", ip).Str("path", c.FullPath()).Msg("caller not allowed")
		abort(c, http.StatusForbidden, "forbidden", "caller not allowed")
	}
}

func normOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}
