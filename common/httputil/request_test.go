package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		expected   string
	}{
		{
			name:       "x-forwarded-for single",
			xff:        "203.0.113.195",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.195",
		},
		{
			name:       "x-forwarded-for chain takes first",
			xff:        "203.0.113.195, 70.41.3.18, 150.172.238.178",
			remoteAddr: "10.0.0.1:1234",
			expected:   "203.0.113.195",
		},
		{
			name:       "x-real-ip fallback",
			xRealIP:    "198.51.100.7",
			remoteAddr: "10.0.0.1:1234",
			expected:   "198.51.100.7",
		},
		{
			name:       "remote addr fallback",
			remoteAddr: "192.0.2.4:5678",
			expected:   "192.0.2.4:5678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(req); got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"", 50, 50},
		{"25", 50, 25},
		{"abc", 50, 50},
		{"-3", 50, -3},
	}

	for _, tt := range tests {
		if got := ParseIntParam(tt.input, tt.def); got != tt.expected {
			t.Errorf("ParseIntParam(%q, %d) = %d, want %d", tt.input, tt.def, got, tt.expected)
		}
	}
}

func TestParseTimeParam(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got := ParseTimeParam("2025-06-01T12:00:00Z")
		if got == nil {
			t.Fatal("expected a parsed time")
		}
		want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := ParseTimeParam(""); got != nil {
			t.Errorf("expected nil for empty input, got %v", got)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if got := ParseTimeParam("yesterday"); got != nil {
			t.Errorf("expected nil for invalid input, got %v", got)
		}
	})
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, 50},
		{"explicit", "?page=3&limit=20", 3, 20},
		{"limit capped", "?limit=5000", 1, 1000},
		{"page floor", "?page=0", 1, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			p := ParsePagination(req, 50, 1000)
			if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
				t.Errorf("got page=%d limit=%d, want page=%d limit=%d", p.Page, p.Limit, tt.wantPage, tt.wantLimit)
			}
		})
	}
}

func TestPaginationOffset(t *testing.T) {
	p := Pagination{Page: 3, Limit: 20}
	if got := p.Offset(); got != 40 {
		t.Errorf("Offset() = %d, want 40", got)
	}
}
