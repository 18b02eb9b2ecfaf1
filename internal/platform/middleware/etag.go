package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// bufferedWriter holds the handler's status and body so the ETag can be
// computed before anything reaches the client.
type bufferedWriter struct {
	writer http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedWriter) Header() http.Header         { return w.writer.Header() }
func (w *bufferedWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *bufferedWriter) WriteHeader(code int)        { w.status = code }

func (w *bufferedWriter) flush() error {
	w.writer.WriteHeader(w.status)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.buf.Bytes())
	return err
}

// ETag sets a weak ETag and "Cache-Control: private, max-age=<maxAge>" on
// successful GET responses and answers a matching If-None-Match with 304.
// Paths listed in skip (exact match) pass through untouched. It must wrap
// RequestTimeout so a 504 is never written into the buffer.
func ETag(maxAge int, skip ...string) echo.MiddlewareFunc {
	cacheControl := fmt.Sprintf("private, max-age=%d", maxAge)
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || skipped[req.URL.Path] {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedWriter{writer: orig, status: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}

			if buf.status >= http.StatusBadRequest {
				return buf.flush()
			}

			etag := computeETag(buf.buf.Bytes())
			res.Header().Set("ETag", etag)
			res.Header().Set("Cache-Control", cacheControl)
			if etagMatch(req.Header.Get("If-None-Match"), etag) {
				res.Header().Del(echo.HeaderContentType)
				res.Status = http.StatusNotModified
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flush()
		}
	}
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatch compares an If-None-Match value (a list or "*") weakly.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
