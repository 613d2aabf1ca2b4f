package mw

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// CORS 返回跨域中间件：dev 环境允许所有来源，其余环境只允许同源或 allowed 中列出的来源。
func CORS(env string, allowed []string) gin.HandlerFunc {
	allow := newOriginPolicy(env, allowed)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if allow(origin, c.Request.Host) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Chat-Code")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// CheckOrigin 返回 WebSocket 握手的来源校验，规则与 CORS 相同。
// 没有 Origin 头的请求来自非浏览器客户端，直接放行。
func CheckOrigin(env string, allowed []string) func(r *http.Request) bool {
	allow := newOriginPolicy(env, allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allow(origin, r.Host)
	}
}

func newOriginPolicy(env string, allowed []string) func(origin, host string) bool {
	allow := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allow[o] = struct{}{}
	}
	return func(origin, host string) bool {
		if env == "dev" {
			return true
		}
		if _, ok := allow[origin]; ok {
			return true
		}
		return sameHost(origin, host)
	}
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}
