package requestmeta

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

const (
	headerKey  = "X-Request-ID"
	contextKey = "request_meta"
)

// Meta describes the caller of a request for logging and audit purposes.
type Meta struct {
	RequestID string
	IP        string
	UserAgent string
	Client    string
}

// Middleware assigns a request id and captures caller metadata.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerKey)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ua := c.GetHeader("User-Agent")
		c.Set(contextKey, Meta{
			RequestID: reqID,
			IP:        c.ClientIP(),
			UserAgent: ua,
			Client:    Describe(ua),
		})
		c.Writer.Header().Set(headerKey, reqID)

		c.Next()
	}
}

// FromContext returns the metadata stored in the Gin context. When the
// middleware did not run it is rebuilt from the raw request.
func FromContext(c *gin.Context) Meta {
	if v, exists := c.Get(contextKey); exists {
		if meta, ok := v.(Meta); ok {
			return meta
		}
	}
	ua := c.GetHeader("User-Agent")
	return Meta{IP: c.ClientIP(), UserAgent: ua, Client: Describe(ua)}
}

// RequestID returns only the request id.
func RequestID(c *gin.Context) string {
	return FromContext(c).RequestID
}

// Describe condenses a user agent into "browser version / os".
func Describe(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return fmt.Sprintf("bot %s", name)
	}
	name, version := ua.Browser()
	parts := make([]string, 0, 3)
	if name != "" {
		parts = append(parts, strings.TrimSpace(name+" "+version))
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if ua.Mobile() {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, " / ")
}
