package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag writes payload as a body hash ETag alongside the
// response. A matching If-None-Match short-circuits to 304 with no body,
// which is the cheap path for a poller re-fetching a job/status resource
// that hasn't changed since it last asked.
func RespondJSONWithETag(ctx *gin.Context, status int, payload interface{}) {
	etag, err := buildETag(payload)
	if err != nil {
		// Can't hash it, so don't pretend we can cache it either.
		ctx.JSON(status, payload)
		return
	}

	ctx.Header("ETag", etag)

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(status, payload)
}

// buildETag hashes the JSON-encoded payload, so the same resource state
// always yields the same tag regardless of which runner served it.
func buildETag(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// ifNoneMatchMatches evaluates an If-None-Match header against the
// current ETag, accepting a comma-separated list and the "*" wildcard as
// RFC 7232 requires.
func ifNoneMatchMatches(headerValue, currentETag string) bool {
	headerValue = strings.TrimSpace(headerValue)
	currentETag = strings.TrimSpace(currentETag)
	if headerValue == "" || currentETag == "" {
		return false
	}
	if headerValue == "*" {
		return true
	}

	current := normalizeETag(currentETag)
	for _, candidate := range strings.Split(headerValue, ",") {
		if normalizeETag(candidate) == current {
			return true
		}
	}
	return false
}

// normalizeETag strips surrounding whitespace and a weak-validator
// prefix (W/"abc") so a weak and strong tag for the same hash compare
// equal.
func normalizeETag(raw string) string {
	v := strings.TrimSpace(raw)
	if strings.HasPrefix(v, "W/") {
		v = strings.TrimSpace(strings.TrimPrefix(v, "W/"))
	}
	return v
}
