package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"storeapi/internal/pkg/response"
	"storeapi/internal/store"

	"github.com/gin-gonic/gin"
)

// RequestLock rejects a mutating request while an identical one from
// the same caller is still in flight. Identical means same method, path,
// identity and body; two users sending the same payload never collide
// because the identity is part of the fingerprint. Acquisition is a
// single atomic set-if-absent, there is no queueing: the loser gets an
// immediate conflict. The lock is released when the handler finishes;
// the TTL only reaps locks whose handler crashed or hung. Routes with
// slow handlers install this with a longer ttl.
func RequestLock(st store.Store, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.AbortError(c, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := "reqlock:" + requestFingerprint(c, body)

		acquired, err := st.SetNX(c.Request.Context(), key, "1", ttl)
		if err != nil {
			// store cannot arbitrate, proceed without protection
			c.Next()
			return
		}
		if !acquired {
			response.AbortError(c, http.StatusConflict, "DUPLICATE_REQUEST",
				"An identical request is already being processed")
			return
		}

		// release must not depend on the request context: it may already
		// be canceled when the client disconnected mid-handler
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			st.Delete(releaseCtx, key)
		}()

		c.Next()
	}
}

func requestFingerprint(c *gin.Context, body []byte) string {
	identity := "anonymous"
	if userID := c.GetInt64("user_id"); userID != 0 {
		identity = requestIdentity(c)
	}

	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte{'|'})
	h.Write([]byte(c.Request.URL.Path))
	h.Write([]byte{'|'})
	h.Write([]byte(identity))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
