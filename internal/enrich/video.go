// 包 enrich 通过第三方只读接口为文章补充元数据（B 站视频、音乐），
// 结果写入缓存后永不刷新：命中缓存时不发起任何网络请求。
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"kayblog/internal/cache"
	"kayblog/internal/fetch"
	"kayblog/internal/logx"
	"kayblog/internal/model"
)

// ErrUpstream 表示上游返回了业务错误（code != 0 或缺少 data）。
var ErrUpstream = errors.New("upstream rejected request")

// Videos 解析 B 站视频信息。
type Videos struct {
	client *fetch.Client
	store  cache.Store
	api    string
}

// NewVideos 创建视频解析器；api 为 view 接口地址（不带查询参数）。
func NewVideos(client *fetch.Client, store cache.Store, api string) *Videos {
	return &Videos{client: client, store: store, api: api}
}

type videoResponse struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    *model.VideoMeta `json:"data"`
}

// Video 先查缓存；未命中时请求一次上游，成功后写回缓存。
func (v *Videos) Video(ctx context.Context, bvid string) (*model.VideoMeta, error) {
	bvid = strings.TrimSpace(bvid)
	if bvid == "" {
		return nil, errors.New("empty bvid")
	}
	var meta model.VideoMeta
	ok, err := cache.GetJSON(ctx, v.store, bvid, &meta)
	if err != nil {
		logx.Warnf("读取视频缓存失败：%s 错误=%v", bvid, err)
	}
	if ok {
		return &meta, nil
	}

	u, err := url.Parse(v.api)
	if err != nil {
		return nil, fmt.Errorf("parse video api: %w", err)
	}
	q := u.Query()
	q.Set("bvid", bvid)
	u.RawQuery = q.Encode()

	var resp videoResponse
	if err := v.client.GetJSON(ctx, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("fetch video %s: %w", bvid, err)
	}
	if resp.Code != 0 || resp.Data == nil {
		return nil, fmt.Errorf("fetch video %s: %w: code=%d message=%s", bvid, ErrUpstream, resp.Code, resp.Message)
	}
	out := *resp.Data
	if out.ExternalID == "" {
		out.ExternalID = bvid
	}
	out.ThumbnailURL = secure(out.ThumbnailURL)
	if err := cache.PutJSON(ctx, v.store, bvid, out); err != nil {
		// 写缓存失败不影响本次结果，下次构建会重新拉取
		logx.Warnf("写入视频缓存失败：%s 错误=%v", bvid, err)
	}
	return &out, nil
}

// secure 将 http:// 升级为 https://，避免页面混合内容告警。
func secure(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
