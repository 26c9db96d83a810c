package proxy_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"kayblog/internal/proxy"
)

func newHandler(t *testing.T) *proxy.Handler {
	t.Helper()
	cl, err := proxy.NewClient("", "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return proxy.New(cl)
}

func TestProxy_MissingURL(t *testing.T) {
	h := newHandler(t)
	for _, q := range []string{"", "?url=", "?url=ftp%3A%2F%2Fx%2Fa.mp3"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio-proxy"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: status %d", q, rec.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["error"] != "Missing url parameter" {
			t.Fatalf("%q: body %v", q, body)
		}
	}
}

func TestProxy_StreamsWithBrowserHeaders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/song.mp3", http.StatusFound)
	})
	mux.HandleFunc("/song.mp3", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://y.qq.com/" || r.Header.Get("Origin") != "https://y.qq.com" {
			t.Errorf("missing browser headers: %v", r.Header)
		}
		if r.Header.Get("User-Agent") == "" || r.Header.Get("Accept-Encoding") != "identity" {
			t.Errorf("ua/encoding: %v", r.Header)
		}
		_, _ = w.Write([]byte("ID3audio"))
	})
	up := httptest.NewServer(mux)
	defer up.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/audio-proxy?url="+url.QueryEscape(up.URL+"/redirect"), nil)
	newHandler(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if b, _ := io.ReadAll(rec.Body); string(b) != "ID3audio" {
		t.Fatalf("body %q", b)
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=31536000, immutable" {
		t.Fatalf("cache-control: %s", rec.Header().Get("Cache-Control"))
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("cors header missing")
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Fatalf("content-type missing")
	}
}

func TestProxy_UpstreamStatusEchoed(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer up.Close()

	rec := httptest.NewRecorder()
	target := up.URL + "/x.mp3"
	newHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio-proxy?url="+url.QueryEscape(target), nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != 403 || body.URL != target || body.Error == "" {
		t.Fatalf("body %+v", body)
	}
}

func TestProxy_NetworkError(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	addr := up.URL
	up.Close()

	rec := httptest.NewRecorder()
	newHandler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio-proxy?url="+url.QueryEscape(addr+"/a.mp3"), nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["details"] == nil {
		t.Fatalf("details missing: %v", body)
	}
}
