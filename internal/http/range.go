package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/mixtape/mixtape/internal/version"
)

// Stream errors.
var (
	ErrNotFound            = errors.New("http: resource not found")
	ErrForbidden           = errors.New("http: access forbidden")
	ErrUnauthorized        = errors.New("http: unauthorized")
	ErrServerError         = errors.New("http: server error")
	ErrRangeNotSatisfiable = errors.New("http: requested range not satisfiable")
	ErrRangeMismatch       = errors.New("http: server returned a different range than requested")
)

// StreamResponse is an opened audio stream.
type StreamResponse struct {
	Body       io.ReadCloser // nil when StatusCode is 416
	StatusCode int
	// Resumed is true when the server honoured the Range header (206).
	// When false the body starts at byte zero.
	Resumed bool
	// Offset is the position of the first body byte in the full resource.
	Offset int64
	// TotalSize is the full resource length, -1 if the server did not say.
	TotalSize int64
	ETag      string
}

// OpenStream issues a GET for url. A positive offset adds
// "Range: bytes=<offset>-". A 206 confirms the resume; a 200 means the server
// ignored the range and the caller must restart from zero.
//
// A 416 is returned as ErrRangeNotSatisfiable together with a response that
// carries the server's reported total, so the caller can tell "already
// complete" apart from "resource shrank".
func OpenStream(ctx context.Context, client *nethttp.Client, url string, offset int64) (*StreamResponse, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	etag := cleanETag(resp.Header.Get("ETag"))

	switch {
	case resp.StatusCode == nethttp.StatusPartialContent:
		start, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %v", ErrRangeMismatch, err)
		}
		if start != offset {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: asked for %d, got %d", ErrRangeMismatch, offset, start)
		}
		return &StreamResponse{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Resumed:    offset > 0,
			Offset:     start,
			TotalSize:  total,
			ETag:       etag,
		}, nil

	case resp.StatusCode == nethttp.StatusOK:
		total := resp.ContentLength
		if total < 0 {
			total = -1
		}
		return &StreamResponse{
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			TotalSize:  total,
			ETag:       etag,
		}, nil

	case resp.StatusCode == nethttp.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		total := parseUnsatisfiedRange(resp.Header.Get("Content-Range"))
		return &StreamResponse{
			StatusCode: resp.StatusCode,
			Offset:     offset,
			TotalSize:  total,
			ETag:       etag,
		}, ErrRangeNotSatisfiable

	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, nethttp.StatusText(resp.StatusCode))

	default:
		resp.Body.Close()
		return nil, checkStatusCode(resp.StatusCode)
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == nethttp.StatusNotFound, code == nethttp.StatusGone:
		return ErrNotFound
	case code == nethttp.StatusForbidden:
		return ErrForbidden
	case code == nethttp.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// IsTransient reports whether a stream error is worth a user-initiated retry
// with the partial data kept.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrServerError) || errors.Is(err, ErrRangeMismatch) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	return ClassifyError(err).Retryable()
}

// cleanETag removes quotes and the weak prefix from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total is -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimSpace(strings.TrimPrefix(header, "bytes "))
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}

// parseUnsatisfiedRange reads the total from a 416 "bytes */<total>" header.
func parseUnsatisfiedRange(header string) int64 {
	header = strings.TrimSpace(strings.TrimPrefix(header, "bytes "))
	if !strings.HasPrefix(header, "*/") {
		return -1
	}
	total, err := strconv.ParseInt(strings.TrimPrefix(header, "*/"), 10, 64)
	if err != nil {
		return -1
	}
	return total
}
