package middlewares

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"felicity/utils"
)

type cachedBody struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// sha1Hex keeps long query strings out of Redis keys.
func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CacheKeyFrom returns the Redis key for a cacheable request and its
// namespace, or "" when the response must not be cached. Only anonymous
// GETs are cached because authenticated views depend on the caller.
func CacheKeyFrom(c *gin.Context) (string, string) {
	method := c.Request.Method
	path := c.FullPath()
	rawq := c.Request.URL.RawQuery

	if method != http.MethodGet || path == "" || c.GetHeader("Authorization") != "" {
		return "", ""
	}

	switch path {
	case "/events/trending":
		return utils.CacheTrending + sha1Hex(rawq), "trending"
	case "/events/:id":
		id := c.Param("id")
		return utils.CacheEventItem + id + ":" + sha1Hex("GET|/events/"+id), "item"
	case "/events":
		return utils.CacheEventsList + sha1Hex("GET|/events|"+rawq), "list"
	case "/organizers", "/organizers/:id":
		return utils.CacheOrganizers + sha1Hex(c.Request.URL.Path+"|"+rawq), "organizers"
	default:
		return "", ""
	}
}

func ResponseCache(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, _ := CacheKeyFrom(c)
		if key == "" || rdb == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if b, err := rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedBody
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&hit); err == nil {
				for k, vals := range hit.Header {
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Status(hit.Status)
				_, _ = c.Writer.Write(hit.Body)
				c.Abort()
				return
			}
		}

		// Headers are flushed with the first body write, so MISS goes on
		// before the handler runs.
		c.Writer.Header().Set("X-Cache", "MISS")
		bw := &bufferedWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = bw

		c.Next()

		if bw.Status() >= 200 && bw.Status() < 300 {
			header := bw.Header().Clone()
			header.Del("X-Cache")
			item := cachedBody{Status: bw.Status(), Header: header, Body: bw.buf.Bytes()}

			var o bytes.Buffer
			if err := gob.NewEncoder(&o).Encode(item); err == nil {
				_ = rdb.Set(ctx, key, o.Bytes(), ttl).Err()
			}
		}
	}
}

type bufferedWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
