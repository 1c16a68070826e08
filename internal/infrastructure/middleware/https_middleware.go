package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler 把 HTTP 请求重定向到 HTTPS，mainConfig.tlsRedirect 打开时启用
// 由 Nginx 终结 TLS 时保持关闭，SSLProxyHeaders 让反代后的请求不被重复重定向
func TlsHandler(host string, port int) gin.HandlerFunc {
	// 1. 在返回函数之前初始化，避免每次请求都重复创建对象
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:     true,
		SSLHost:         host + ":" + strconv.Itoa(port),
		SSLProxyHeaders: map[string]string{"X-Forwarded-Proto": "https"},
	})

	return func(c *gin.Context) {
		// 2. 中间件里不能用 Fatal，记录日志并终止当前请求
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			zap.L().Error("TLS redirection failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Abort()
			return
		}

		// 3. 已经写了重定向响应时不再往下执行
		if c.Writer.Written() {
			c.Abort()
			return
		}
		c.Next()
	}
}
