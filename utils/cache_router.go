package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CacheNoCache = 0
	CacheCustom  = -1
)

// CacheRouter sets a default cache-control header on every response.
// API responses default to no-cache; stored objects never change under
// a given key, so the file routes override with CacheFor
type CacheRouter struct {
	CacheTime int
}

func (cr *CacheRouter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch cr.CacheTime {
		case CacheCustom:
			// the handler sets its own header
		case CacheNoCache:
			c.Header("cache-control", "no-cache")
		default:
			c.Header("cache-control", "private, max-age="+strconv.Itoa(cr.CacheTime))
		}
		c.Next()
	}
}

// CacheFor overrides the default for a single response
func CacheFor(c *gin.Context, seconds int) {
	c.Header("cache-control", "private, max-age="+strconv.Itoa(seconds))
}
