package security

import (
	"net/http"
	"strings"

	"huddle/global"
	"huddle/tools/errs"
	"huddle/tools/security"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware; downstream handlers read these.
const (
	CtxUserIDKey = "authUserID"
	CtxOrgIDKey  = "authOrgID"
)

type Options struct {
	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the request token and places the resolved identity
// into the gin context. The update-delivery core trusts this identity.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	jwtOpts := security.DefaultOptions(global.GetJwtSecret())

	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// Authorization: Bearer xxx
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthorized)
			return
		}

		id, err := security.Verify(jwtOpts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenExpired)
			return
		}

		c.Set(CtxUserIDKey, id.UserID)
		c.Set(CtxOrgIDKey, id.OrgID)
		c.Next()
	}
}

// Identity reads the authenticated identity from the gin context.
func Identity(c *gin.Context) (userID, orgID string, ok bool) {
	u, okU := c.Get(CtxUserIDKey)
	o, okO := c.Get(CtxOrgIDKey)
	if !okU || !okO {
		return "", "", false
	}
	return u.(string), o.(string), true
}
