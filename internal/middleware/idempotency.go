package middleware

import (
	"bytes"
	"encoding/json"
	"log"
	"time"

	"storeapi/internal/store"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// cachedResponse is what a replayed write returns verbatim.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency memoizes successful write responses under a
// client-supplied key. A replay within the TTL returns the recorded
// status and body without re-invoking the handler, so retried writes
// execute their side effects at most once. The contract is opt-in: no
// header, no memoization. Only 2xx responses are recorded, since a failed
// write may legitimately be retried for real.
func Idempotency(st store.Store, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}
		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		cacheKey := "idempotency:" + key

		if raw, err := st.Get(c.Request.Context(), cacheKey); err == nil {
			var cached cachedResponse
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				c.Header("Idempotency-Replayed", "true")
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		// tee the response so the body is known once the handler is done
		buf := &bytes.Buffer{}
		writer := &teeWriter{ResponseWriter: c.Writer, buf: buf}
		c.Writer = writer

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status > 299 {
			return
		}

		payload, err := json.Marshal(cachedResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        buf.Bytes(),
		})
		if err != nil {
			return
		}
		if err := st.Set(c.Request.Context(), cacheKey, string(payload), ttl); err != nil {
			log.Printf("level=warn msg=\"idempotency record not stored\" key=%s error=%q", key, err)
		}
	}
}

// teeWriter copies everything written to the client into a buffer. The
// response still streams through unchanged.
type teeWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
