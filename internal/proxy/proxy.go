// 包 proxy 实现音频中转：以浏览器请求头代为请求上游音频流，绕过防盗链与混合内容限制。
// 无状态、不重试。
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"kayblog/internal/fetch"
	"kayblog/internal/logx"
)

// BrowserHeaders 为转发时附带的请求头（User-Agent 由 fetch.Client 设置）。
var BrowserHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	"Accept-Encoding": "identity",
	"Origin":          "https://y.qq.com",
	"Referer":         "https://y.qq.com/",
}

// NewClient 创建适合流式转发的客户端：不限制整体耗时，不重试。
func NewClient(proxyHTTP, proxyHTTPS string) (*fetch.Client, error) {
	return fetch.New(fetch.Options{
		ProxyHTTP:  proxyHTTP,
		ProxyHTTPS: proxyHTTPS,
		Timeout:    -1,
		UserAgent:  fetch.DefaultUA,
		Headers:    BrowserHeaders,
	})
}

// Handler 处理 GET ?url=<上游地址>。
type Handler struct {
	client *fetch.Client
}

func New(client *fetch.Client) *Handler {
	return &Handler{client: client}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if !validTarget(target) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing url parameter"})
		return
	}
	start := time.Now()
	resp, err := h.client.Get(r.Context(), target)
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			logx.Warnf("音频中转失败：状态=%d url=%s", se.StatusCode, target)
			writeJSON(w, se.StatusCode, map[string]any{"error": "Failed to fetch audio", "status": se.StatusCode, "url": target})
			return
		}
		logx.Errorf("音频中转错误：url=%s 错误=%v", target, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "Failed to proxy audio", "details": err.Error()})
		return
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		// 客户端中途断开很常见，只记调试日志
		logx.Debugf("音频中转中断：url=%s 已写入=%d 错误=%v", target, n, err)
		return
	}
	logx.Debugf("音频中转完成：url=%s 字节=%d 耗时=%s", target, n, time.Since(start).Round(time.Millisecond))
}

func validTarget(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
