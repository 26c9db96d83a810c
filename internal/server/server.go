// 包 server 提供站点的 HTTP 服务：
// - /api/* 只读 JSON 接口（文章、歌单、友链、Steam）
// - /api/audio-proxy 音频中转
// - /api/player 与 /ws/player：服务端播放控制器，浏览器的 audio 元素通过 websocket 充当唯一音频输出
// - 其余路径回落为构建产物目录的静态文件
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"kayblog/internal/friends"
	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/player"
	"kayblog/internal/songs"
	"kayblog/internal/steam"
)

// PostSource 为文章来源（通常是 *assemble.Assembler）。
type PostSource interface {
	Assemble(ctx context.Context) []model.Post
}

// Deps 为服务依赖；除 Posts 外均可为 nil。
type Deps struct {
	Posts       PostSource
	SongsFile   string
	FriendsFile string
	Circle      *friends.Circle
	Steam       *steam.Client
	Player      *player.Controller
	Sink        *RemoteSink
	AudioProxy  http.Handler
	StaticDir   string
}

type Server struct {
	deps Deps

	mu          sync.RWMutex
	posts       []model.Post
	songs       []model.Song
	friends     []model.Friend
	friendPosts []model.FriendPost
}

func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Refresh 重新组装文章并重新读取歌单与友链。
func (s *Server) Refresh(ctx context.Context) {
	posts := s.deps.Posts.Assemble(ctx)
	var (
		list []model.Song
		fr   []model.Friend
		err  error
	)
	if s.deps.SongsFile != "" {
		if list, err = songs.Load(s.deps.SongsFile); err != nil {
			logx.Warnf("读取歌单失败：%v", err)
		}
	}
	if s.deps.FriendsFile != "" {
		if fr, err = friends.Load(s.deps.FriendsFile); err != nil {
			logx.Warnf("读取友链失败：%v", err)
		}
	}
	s.mu.Lock()
	s.posts, s.songs, s.friends = posts, list, fr
	s.mu.Unlock()
}

// RefreshFriendPosts 抓取朋友圈文章；未启用时什么也不做。
func (s *Server) RefreshFriendPosts(ctx context.Context) {
	if s.deps.Circle == nil {
		return
	}
	s.mu.RLock()
	fr := append([]model.Friend(nil), s.friends...)
	s.mu.RUnlock()
	fp := s.deps.Circle.Collect(ctx, fr)
	s.mu.Lock()
	s.friendPosts = fp
	s.mu.Unlock()
}

// Router 返回完整路由。
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/posts", s.handlePosts).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", s.handlePost).Methods(http.MethodGet)
	api.HandleFunc("/songs", s.handleSongs).Methods(http.MethodGet)
	api.HandleFunc("/friends", s.handleFriends).Methods(http.MethodGet)
	api.HandleFunc("/friend-posts", s.handleFriendPosts).Methods(http.MethodGet)
	api.HandleFunc("/steam/profile", s.handleSteamProfile).Methods(http.MethodGet)
	api.HandleFunc("/steam/games", s.handleSteamGames).Methods(http.MethodGet)
	if s.deps.AudioProxy != nil {
		api.Handle("/audio-proxy", s.deps.AudioProxy).Methods(http.MethodGet)
	}
	if s.deps.Player != nil {
		api.HandleFunc("/player", s.handlePlayerState).Methods(http.MethodGet)
		api.HandleFunc("/player/{action}", s.handlePlayerAction).Methods(http.MethodPost)
	}
	if s.deps.Sink != nil {
		r.Handle("/ws/player", s.deps.Sink)
	}
	r.HandleFunc("/theme.css", handleThemeCSS).Methods(http.MethodGet)
	if s.deps.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.deps.StaticDir)))
	}
	// 预检请求匹配不到任何路由，CORS 放在最外层
	return corsMiddleware(r)
}

// Run 启动监听，ctx 取消后优雅退出。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		// 音频中转与 websocket 为长连接，不设置 WriteTimeout
		IdleTimeout: 120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logx.Infof("HTTP 服务已启动：%s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logx.Infof("正在关闭 HTTP 服务")
	if s.deps.Sink != nil {
		s.deps.Sink.Close()
	}
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logx.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
