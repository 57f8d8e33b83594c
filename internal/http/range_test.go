package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// rangeServer serves body and honours "bytes=N-" ranges when ranged is true.
func rangeServer(t *testing.T, body string, ranged bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", `"v1"`)
		rng := r.Header.Get("Range")
		if !ranged || rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(nethttp.StatusOK)
			io.WriteString(w, body)
			return
		}
		start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
		if err != nil {
			t.Errorf("bad Range header %q", rng)
			return
		}
		if start >= len(body) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(body)))
			w.WriteHeader(nethttp.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(body)-1, len(body)))
		w.WriteHeader(nethttp.StatusPartialContent)
		io.WriteString(w, body[start:])
	}))
}

func TestOpenStream_FullBody(t *testing.T) {
	srv := rangeServer(t, "0123456789", true)
	defer srv.Close()

	resp, err := OpenStream(context.Background(), srv.Client(), srv.URL, 0)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.Resumed || resp.Offset != 0 {
		t.Errorf("fresh open should not be resumed: %+v", resp)
	}
	if resp.TotalSize != 10 {
		t.Errorf("TotalSize = %d, want 10", resp.TotalSize)
	}
	if resp.ETag != "v1" {
		t.Errorf("ETag = %q, want v1", resp.ETag)
	}
}

func TestOpenStream_ResumeHonoured(t *testing.T) {
	srv := rangeServer(t, "0123456789", true)
	defer srv.Close()

	resp, err := OpenStream(context.Background(), srv.Client(), srv.URL, 4)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer resp.Body.Close()

	if !resp.Resumed || resp.Offset != 4 || resp.StatusCode != nethttp.StatusPartialContent {
		t.Errorf("expected resumed 206 at offset 4, got %+v", resp)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "456789" {
		t.Errorf("body = %q", got)
	}
	if resp.TotalSize != 10 {
		t.Errorf("TotalSize = %d, want 10", resp.TotalSize)
	}
}

func TestOpenStream_RangeIgnoredRestartsFromZero(t *testing.T) {
	srv := rangeServer(t, "0123456789", false)
	defer srv.Close()

	resp, err := OpenStream(context.Background(), srv.Client(), srv.URL, 4)
	if err != nil {
		t.Fatalf("OpenStream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.Resumed || resp.Offset != 0 || resp.StatusCode != nethttp.StatusOK {
		t.Errorf("expected restart from zero, got %+v", resp)
	}
}

func TestOpenStream_RangeNotSatisfiable(t *testing.T) {
	srv := rangeServer(t, "0123456789", true)
	defer srv.Close()

	resp, err := OpenStream(context.Background(), srv.Client(), srv.URL, 10)
	if !errors.Is(err, ErrRangeNotSatisfiable) {
		t.Fatalf("expected ErrRangeNotSatisfiable, got %v", err)
	}
	if resp == nil || resp.TotalSize != 10 {
		t.Fatalf("expected total 10 from 416, got %+v", resp)
	}
}

func TestOpenStream_StatusErrors(t *testing.T) {
	tests := []struct {
		code      int
		want      error
		transient bool
	}{
		{nethttp.StatusNotFound, ErrNotFound, false},
		{nethttp.StatusForbidden, ErrForbidden, false},
		{nethttp.StatusUnauthorized, ErrUnauthorized, false},
		{nethttp.StatusBadGateway, ErrServerError, true},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			_, err := OpenStream(context.Background(), srv.Client(), srv.URL, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, !tt.transient, tt.transient)
			}
		})
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header            string
		start, end, total int64
		wantErr           bool
	}{
		{"bytes 0-99/100", 0, 99, 100, false},
		{"bytes 50-99/*", 50, 99, -1, false},
		{"bytes 0-99", 0, 0, 0, true},
		{"bytes x-99/100", 0, 0, 0, true},
	}
	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseContentRange(%q) error = %v", tt.header, err)
			continue
		}
		if !tt.wantErr && (start != tt.start || end != tt.end || total != tt.total) {
			t.Errorf("ParseContentRange(%q) = %d,%d,%d", tt.header, start, end, total)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(io.ErrUnexpectedEOF) {
		t.Error("unexpected EOF should be transient")
	}
	if !IsTransient(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation is not transient")
	}
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}
