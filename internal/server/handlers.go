package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/player"
	"kayblog/internal/render"
	"kayblog/internal/songs"
	"kayblog/internal/steam"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Debugf("写出响应失败：%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	posts := s.posts
	s.mu.RUnlock()
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "post not found")
}

type songView struct {
	model.Song
	StreamURL string `json:"streamUrl,omitempty"`
	Supported bool   `json:"supported"`
}

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	list := s.songs
	s.mu.RUnlock()
	out := make([]songView, 0, len(list))
	for _, sg := range list {
		out = append(out, songView{Song: sg, StreamURL: songs.StreamURL(sg), Supported: songs.Supported(sg.Source)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	list := s.friends
	s.mu.RUnlock()
	if list == nil {
		list = []model.Friend{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFriendPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	list := s.friendPosts
	s.mu.RUnlock()
	if list == nil {
		list = []model.FriendPost{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) steamEnabled(w http.ResponseWriter) bool {
	if s.deps.Steam == nil || !s.deps.Steam.Enabled() {
		writeError(w, http.StatusNotFound, "steam not configured")
		return false
	}
	return true
}

func (s *Server) handleSteamProfile(w http.ResponseWriter, r *http.Request) {
	if !s.steamEnabled(w) {
		return
	}
	p, err := s.deps.Steam.Profile(r.Context())
	if err != nil {
		logx.Warnf("获取 Steam 资料失败：%v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch steam profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type gameView struct {
	steam.Game
	HeaderImage string `json:"headerImage"`
	Playtime    string `json:"playtime"`
}

func gameViews(list []steam.Game) []gameView {
	out := make([]gameView, 0, len(list))
	for _, g := range list {
		out = append(out, gameView{Game: g, HeaderImage: g.HeaderImage(), Playtime: steam.FormatPlaytime(g.PlaytimeForever)})
	}
	return out
}

func (s *Server) handleSteamGames(w http.ResponseWriter, r *http.Request) {
	if !s.steamEnabled(w) {
		return
	}
	owned, err := s.deps.Steam.OwnedGames(r.Context())
	if err != nil {
		logx.Warnf("获取 Steam 游戏库失败：%v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch steam games")
		return
	}
	recent, err := s.deps.Steam.RecentGames(r.Context())
	if err != nil {
		// 最近游玩失败不影响游戏库
		logx.Warnf("获取 Steam 最近游玩失败：%v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owned":  gameViews(owned),
		"recent": gameViews(recent),
	})
}

func handleThemeCSS(w http.ResponseWriter, r *http.Request) {
	css, err := render.ThemeCSS()
	if err != nil {
		logx.Errorf("生成代码高亮样式失败：%v", err)
		http.Error(w, "theme unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(css))
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Player.Snapshot())
}

type playerRequest struct {
	ID      string   `json:"id"`
	Value   *float64 `json:"value"`
	Drag    bool     `json:"drag"`
	Seconds float64  `json:"seconds"`
}

// handlePlayerAction 执行播放控制。需要等待音频输出确认的操作在后台执行，立即返回 202 与当前快照；
// 结果通过 /ws/player 的状态推送获得。
func (s *Server) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	pc := s.deps.Player
	action := mux.Vars(r)["action"]
	switch action {
	case "play":
		song, queue, ok := s.lookupSong(req.ID)
		if !ok {
			writeError(w, http.StatusNotFound, "song not found")
			return
		}
		s.background(action, func(ctx context.Context) error { return pc.Play(ctx, song, queue) })
	case "toggle":
		s.background(action, pc.TogglePlay)
	case "next":
		s.background(action, pc.Next)
	case "prev":
		s.background(action, pc.Previous)
	case "mode":
		pc.ToggleMode()
		writeJSON(w, http.StatusOK, pc.Snapshot())
		return
	case "volume":
		if req.Value == nil {
			writeError(w, http.StatusBadRequest, "missing value")
			return
		}
		if req.Drag {
			pc.AdjustVolume(*req.Value)
		} else if err := pc.SetVolume(*req.Value); err != nil {
			logx.Warnf("保存音量失败：%v", err)
		}
		writeJSON(w, http.StatusOK, pc.Snapshot())
		return
	case "seek":
		if err := pc.Seek(req.Seconds); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, pc.Snapshot())
		return
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	writeJSON(w, http.StatusAccepted, pc.Snapshot())
}

// lookupSong 在歌单中查找歌曲，队列为整个歌单。
func (s *Server) lookupSong(id string) (model.Song, []model.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sg := range s.songs {
		if sg.ID == id {
			return sg, append([]model.Song(nil), s.songs...), true
		}
	}
	return model.Song{}, nil, false
}

func (s *Server) background(action string, fn func(ctx context.Context) error) {
	go func() {
		err := fn(context.Background())
		switch {
		case err == nil, errors.Is(err, player.ErrSuperseded):
		default:
			logx.Debugf("播放操作 %s 失败：%v", action, err)
		}
	}()
}
