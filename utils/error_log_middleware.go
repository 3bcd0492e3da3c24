package utils

import (
	"log"

	"github.com/gin-gonic/gin"
)

type failureLogWriter struct {
	gin.ResponseWriter
	ctx *gin.Context
}

func (w *failureLogWriter) Write(b []byte) (int, error) {
	if status := w.ctx.Writer.Status(); status >= 400 {
		log.Printf("%s %s failed with %d: %s", w.ctx.Request.Method, w.ctx.Request.URL.Path, status, b)
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware logs the body of every failed response. It reads
// bytes as the handler writes them, so it must run before gzip
func ErrorLogMiddleware(c *gin.Context) {
	c.Writer = &failureLogWriter{ResponseWriter: c.Writer, ctx: c}
	c.Next()
}
