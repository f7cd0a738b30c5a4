package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storeapi/internal/pkg/response"
	"storeapi/internal/store"

	"github.com/gin-gonic/gin"
)

// Bucket is one logical traffic class with its own fixed window and cap.
type Bucket struct {
	Name         string
	Cap          int
	Window       time.Duration
	MutatingOnly bool
}

func GeneralBucket(cap int, window time.Duration) Bucket {
	return Bucket{Name: "general", Cap: cap, Window: window}
}

func AuthBucket(cap int, window time.Duration) Bucket {
	return Bucket{Name: "auth", Cap: cap, Window: window}
}

// WriteBucket only counts POST/PUT/PATCH/DELETE, so it can sit on a
// route group that also serves reads.
func WriteBucket(cap int, window time.Duration) Bucket {
	return Bucket{Name: "write", Cap: cap, Window: window, MutatingOnly: true}
}

// RateLimit counts requests per identity in fixed windows anchored at
// the first request; the counter's TTL ends the window, so no reset job
// exists. The identity is the authenticated user when known, else the
// caller IP. When the shared store is down the counters are
// per-instance, so the effective limit relaxes to cap per instance.
func RateLimit(st store.Store, bucket Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket.MutatingOnly && !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", bucket.Name, requestIdentity(c))

		count, err := st.Incr(c.Request.Context(), key, bucket.Window)
		if err != nil {
			// cannot count, let it through
			c.Next()
			return
		}

		if count > int64(bucket.Cap) {
			c.Header("Retry-After", strconv.Itoa(int(bucket.Window.Seconds())))
			response.AbortError(c, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests, please retry later")
			return
		}

		c.Next()
	}
}

// requestIdentity prefers the authenticated user id and falls back to
// the caller IP for anonymous traffic.
func requestIdentity(c *gin.Context) string {
	if userID := c.GetInt64("user_id"); userID != 0 {
		return fmt.Sprintf("u%d", userID)
	}
	return c.ClientIP()
}
