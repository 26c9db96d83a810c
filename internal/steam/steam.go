// 包 steam 是 Steam Web API 的只读客户端（个人资料、游戏库、最近游玩）。
// 未配置 API Key 时所有方法返回空结果而不是错误。
package steam

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"kayblog/internal/fetch"
)

const DefaultBaseURL = "https://api.steampowered.com"

type Profile struct {
	SteamID      string `json:"steamid"`
	PersonaName  string `json:"personaname"`
	ProfileURL   string `json:"profileurl"`
	Avatar       string `json:"avatar"`
	AvatarFull   string `json:"avatarfull"`
	PersonaState int    `json:"personastate"`
	TimeCreated  int64  `json:"timecreated"`
}

// Online 对应 personastate != 0。
func (p Profile) Online() bool { return p.PersonaState != 0 }

type Game struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"`
	Playtime2Weeks  int    `json:"playtime_2weeks,omitempty"`
	ImgIconURL      string `json:"img_icon_url"`
}

// HeaderImage 返回商店头图地址。
func (g Game) HeaderImage() string {
	return "https://shared.akamai.steamstatic.com/store_item_assets/steam/apps/" + strconv.FormatInt(g.AppID, 10) + "/header.jpg"
}

type Client struct {
	http    *fetch.Client
	apiKey  string
	steamID string
	base    string
}

// New 创建客户端；baseURL 为空时使用官方地址。
func New(cl *fetch.Client, apiKey, steamID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: cl, apiKey: apiKey, steamID: steamID, base: baseURL}
}

// Enabled 报告是否配置了 API Key。
func (c *Client) Enabled() bool { return c.apiKey != "" }

func (c *Client) endpoint(path string, q url.Values) string {
	q.Set("key", c.apiKey)
	q.Set("format", "json")
	return c.base + path + "?" + q.Encode()
}

// Profile 返回个人资料；没有 Key 或查无此人时返回 nil。
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var resp struct {
		Response struct {
			Players struct {
				Player []Profile `json:"player"`
			} `json:"players"`
		} `json:"response"`
	}
	u := c.endpoint("/ISteamUser/GetPlayerSummaries/v0001/", url.Values{"steamids": {c.steamID}})
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("steam profile: %w", err)
	}
	if len(resp.Response.Players.Player) == 0 {
		return nil, nil
	}
	p := resp.Response.Players.Player[0]
	return &p, nil
}

type gamesResponse struct {
	Response struct {
		GameCount int    `json:"game_count"`
		Games     []Game `json:"games"`
	} `json:"response"`
}

// OwnedGames 返回游戏库，按总游玩时长倒序。
func (c *Client) OwnedGames(ctx context.Context) ([]Game, error) {
	if !c.Enabled() {
		return nil, nil
	}
	q := url.Values{
		"steamid":                   {c.steamID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
	}
	var resp gamesResponse
	if err := c.http.GetJSON(ctx, c.endpoint("/IPlayerService/GetOwnedGames/v0001/", q), &resp); err != nil {
		return nil, fmt.Errorf("steam owned games: %w", err)
	}
	games := resp.Response.Games
	sort.SliceStable(games, func(i, j int) bool { return games[i].PlaytimeForever > games[j].PlaytimeForever })
	return games, nil
}

// RecentGames 返回最近两周游玩的游戏。
func (c *Client) RecentGames(ctx context.Context) ([]Game, error) {
	if !c.Enabled() {
		return nil, nil
	}
	var resp gamesResponse
	if err := c.http.GetJSON(ctx, c.endpoint("/IPlayerService/GetRecentlyPlayedGames/v0001/", url.Values{"steamid": {c.steamID}}), &resp); err != nil {
		return nil, fmt.Errorf("steam recent games: %w", err)
	}
	return resp.Response.Games, nil
}

// FormatPlaytime 不足一小时显示分钟，否则显示带千分位的小时数。
func FormatPlaytime(minutes int) string {
	hours := minutes / 60
	if hours < 1 {
		return fmt.Sprintf("%d 分钟", minutes)
	}
	return humanize.Comma(int64(hours)) + " 小时"
}

// AccountAge 返回账号注册至今的整年数（按 365 天计）。
func AccountAge(timeCreated int64, now time.Time) string {
	d := now.Sub(time.Unix(timeCreated, 0))
	if d < 0 {
		d = -d
	}
	return fmt.Sprintf("%d 年", int(d/(365*24*time.Hour)))
}
