// 包 fetch 封装出站 HTTP 客户端（代理/超时/可选重试/浏览器请求头），
// 供富化接口、友链订阅、Steam 与音频中转共用。
package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultUA 为常见浏览器 UA，减少 403/反爬误判；可用环境变量 KAYBLOG_UA 覆盖。
const DefaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client 为带可选重试的 HTTP 客户端。
type Client struct {
	http    *http.Client
	retry   int
	ua      string
	headers http.Header
}

// Options 为客户端构造参数。Timeout 为 0 时取 20s，小于 0 表示不限制整体耗时（流式转发）。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	UserAgent  string
	Headers    map[string]string
	// TLSConfig 可选，自签证书的上游（以及测试）需要自带信任根。
	TLSConfig *tls.Config
}

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status: %s (%s)", e.Status, e.URL)
}

// New 创建客户端。
func New(opts Options) (*Client, error) {
	var httpsProxy, httpProxy *url.URL
	if opts.ProxyHTTPS != "" {
		u, err := url.Parse(opts.ProxyHTTPS)
		if err != nil {
			return nil, fmt.Errorf("parse https proxy: %w", err)
		}
		httpsProxy = u
	}
	if opts.ProxyHTTP != "" {
		u, err := url.Parse(opts.ProxyHTTP)
		if err != nil {
			return nil, fmt.Errorf("parse http proxy: %w", err)
		}
		httpProxy = u
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && httpsProxy != nil {
				return httpsProxy, nil
			}
			if req.URL.Scheme == "http" && httpProxy != nil {
				return httpProxy, nil
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   8,
		TLSClientConfig:       opts.TLSConfig,
	}
	cl := &http.Client{Transport: transport}
	switch {
	case opts.Timeout == 0:
		cl.Timeout = 20 * time.Second
	case opts.Timeout > 0:
		cl.Timeout = opts.Timeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = os.Getenv("KAYBLOG_UA")
	}
	if ua == "" {
		ua = DefaultUA
	}
	h := http.Header{}
	for k, v := range opts.Headers {
		h.Set(k, v)
	}
	return &Client{http: cl, retry: opts.Retry, ua: ua, headers: h}, nil
}

// Get 发起 GET 请求，仅在 2xx 时返回响应；其余状态码以 *StatusError 返回。
// 重试次数由 Options.Retry 决定，默认为 0（只尝试一次）。
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		for k, vs := range c.headers {
			req.Header[k] = append([]string(nil), vs...)
		}
		req.Header.Set("User-Agent", c.ua)
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			lastErr = &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
			resp.Body.Close()
		} else {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// GetJSON 请求并解码 JSON 响应体（最多读取 8MB）。
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode json %s: %w", rawURL, err)
	}
	return nil
}

// GetBytes 请求并读取响应体，limit<=0 时取 16MB。
func (c *Client) GetBytes(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 16 << 20
	}
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return b, nil
}
