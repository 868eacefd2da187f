package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{
			name:       "trusted proxy with X-Real-IP",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:4567",
			realIP:     "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "untrusted remote keeps socket address",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "198.51.100.7:4567",
			realIP:     "203.0.113.9",
			want:       "198.51.100.7:4567",
		},
		{
			name:       "no proxies configured keeps socket address",
			remoteAddr: "10.1.2.3:4567",
			realIP:     "203.0.113.9",
			want:       "10.1.2.3:4567",
		},
		{
			name:       "first hop of X-Forwarded-For",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:4567",
			forwarded:  "203.0.113.9, 10.1.2.3",
			want:       "203.0.113.9",
		},
		{
			name:       "invalid X-Real-IP keeps socket address",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:4567",
			realIP:     "not-an-ip",
			want:       "10.1.2.3:4567",
		},
		{
			name:       "single address entry",
			proxies:    []string{"10.1.2.3"},
			remoteAddr: "10.1.2.3:4567",
			realIP:     "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "invalid proxy entry is skipped",
			proxies:    []string{"garbage"},
			remoteAddr: "10.1.2.3:4567",
			realIP:     "203.0.113.9",
			want:       "10.1.2.3:4567",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := TrustedRealIP(tt.proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger_CapturesStatus(t *testing.T) {
	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if rec.Body.String() != "short and stout" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

// Event streaming flushes per event, so the wrapped writer must still look
// like a flusher to handlers.
func TestLogger_PreservesFlusher(t *testing.T) {
	var isFlusher bool
	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		isFlusher = ok
		if ok {
			w.Write([]byte("data: {}\n\n"))
			f.Flush()
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if !isFlusher {
		t.Fatal("wrapped writer does not implement http.Flusher")
	}
	if !rec.Flushed {
		t.Error("flush was not forwarded to the underlying writer")
	}
}
