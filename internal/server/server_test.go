package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kayblog/internal/model"
	"kayblog/internal/player"
	"kayblog/internal/server"
)

type fakePosts struct{ calls atomic.Int32 }

func (f *fakePosts) Assemble(ctx context.Context) []model.Post {
	f.calls.Add(1)
	return []model.Post{
		{ID: "b", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Content: "<p>b</p>"},
		{ID: "a", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Content: "<p>a</p>"},
	}
}

const songsCSV = "歌曲名,艺术家,专辑名,id,歌曲来源名称,封面,时长\n" +
	"Alpha,A,X,wy_1,wy,,3:00\n" +
	"Beta,B,Y,kg_2,kg,,4:00\n"

func writeSongs(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "songs.csv")
	if err := os.WriteFile(p, []byte(songsCSV), 0o644); err != nil {
		t.Fatalf("write songs: %v", err)
	}
	return p
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestAPI_ReadOnlyEndpoints(t *testing.T) {
	posts := &fakePosts{}
	s := server.New(server.Deps{Posts: posts, SongsFile: writeSongs(t)})
	s.Refresh(context.Background())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	var list []model.Post
	if code := getJSON(t, srv.URL+"/api/posts", &list); code != 200 || len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("posts: code=%d list=%+v", code, list)
	}
	var one model.Post
	if code := getJSON(t, srv.URL+"/api/posts/a", &one); code != 200 || one.ID != "a" {
		t.Fatalf("post a: code=%d %+v", code, one)
	}
	if code := getJSON(t, srv.URL+"/api/posts/zzz", nil); code != http.StatusNotFound {
		t.Fatalf("missing post: %d", code)
	}

	var songs []struct {
		ID        string `json:"id"`
		StreamURL string `json:"streamUrl"`
		Supported bool   `json:"supported"`
	}
	if code := getJSON(t, srv.URL+"/api/songs", &songs); code != 200 || len(songs) != 2 {
		t.Fatalf("songs: code=%d %+v", code, songs)
	}
	if songs[0].StreamURL != "https://api.viki.moe/ncm/songs/1/play" || !songs[0].Supported {
		t.Fatalf("song 0: %+v", songs[0])
	}
	if songs[1].StreamURL != "" || songs[1].Supported {
		t.Fatalf("song 1 should be unsupported: %+v", songs[1])
	}

	var friends []model.Friend
	if code := getJSON(t, srv.URL+"/api/friends", &friends); code != 200 || friends == nil || len(friends) != 0 {
		t.Fatalf("friends: code=%d %+v", code, friends)
	}
	if code := getJSON(t, srv.URL+"/api/steam/profile", nil); code != http.StatusNotFound {
		t.Fatalf("steam without config: %d", code)
	}
}

func TestAPI_CORSPreflight(t *testing.T) {
	s := server.New(server.Deps{Posts: &fakePosts{}})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/posts", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}
}

func TestThemeCSS(t *testing.T) {
	s := server.New(server.Deps{Posts: &fakePosts{}})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/theme.css")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/css") {
		t.Fatalf("theme: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

// readUntil 读取消息直到出现指定类型。
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var m map[string]any
		if err := c.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func waitState(t *testing.T, pc *player.Controller, want player.State) player.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := pc.Snapshot(); s.State == want {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, last %+v", want, pc.Snapshot())
	return player.Snapshot{}
}

func post(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestPlayer_OverWebsocket(t *testing.T) {
	sink := server.NewRemoteSink()
	pc := player.New(sink, nil, player.WithListener(sink.Broadcast))
	defer pc.Close()
	sink.OnEnded(func() { _ = pc.HandleEnded(context.Background()) })

	s := server.New(server.Deps{Posts: &fakePosts{}, SongsFile: writeSongs(t), Player: pc, Sink: sink})
	s.Refresh(context.Background())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/player"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if hello := readUntil(t, conn, "hello"); hello["id"] == "" {
		t.Fatalf("hello without client id")
	}
	if vol := readUntil(t, conn, "volume"); vol["value"] != player.DefaultVolume {
		t.Fatalf("initial volume: %v", vol)
	}

	if code := post(t, srv.URL+"/api/player/play", `{"id":"wy_1"}`); code != http.StatusAccepted {
		t.Fatalf("play: %d", code)
	}
	src := readUntil(t, conn, "source")
	if src["url"] != "https://api.viki.moe/ncm/songs/1/play" {
		t.Fatalf("source: %v", src)
	}
	play := readUntil(t, conn, "play")
	if err := conn.WriteJSON(map[string]string{"type": "played", "id": play["id"].(string)}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	snap := waitState(t, pc, player.Playing)
	if snap.CurrentSong == nil || snap.CurrentSong.ID != "wy_1" || len(snap.Queue) != 2 {
		t.Fatalf("snapshot: %+v", snap)
	}

	// 队列中没有其它可播放歌曲，结束后停在暂停
	if err := conn.WriteJSON(map[string]string{"type": "ended"}); err != nil {
		t.Fatalf("ended: %v", err)
	}
	waitState(t, pc, player.Paused)

	if code := post(t, srv.URL+"/api/player/volume", `{"value":0.8}`); code != http.StatusOK {
		t.Fatalf("volume: %d", code)
	}
	if v := readUntil(t, conn, "volume"); v["value"] != 0.8 {
		t.Fatalf("volume push: %v", v)
	}
	if code := post(t, srv.URL+"/api/player/play", `{"id":"nope"}`); code != http.StatusNotFound {
		t.Fatalf("unknown song: %d", code)
	}
	if code := post(t, srv.URL+"/api/player/volume", `{}`); code != http.StatusBadRequest {
		t.Fatalf("volume without value: %d", code)
	}
}

func TestRemoteSink_NoClient(t *testing.T) {
	sink := server.NewRemoteSink()
	if err := sink.Play(context.Background()); err != server.ErrNoClient {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
}

func TestRemoteSink_SetSourceInterruptsPlay(t *testing.T) {
	sink := server.NewRemoteSink()
	srv := httptest.NewServer(sink)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, "hello")

	done := make(chan error, 1)
	go func() { done <- sink.Play(context.Background()) }()
	readUntil(t, conn, "play")
	sink.SetSource("https://example.com/next.mp3")
	select {
	case err := <-done:
		if err != server.ErrInterrupted {
			t.Fatalf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("play was not interrupted")
	}
}

func TestWatch_Debounces(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	ready := make(chan error, 1)
	go func() {
		ready <- server.Watch(ctx, []string{dir}, 100*time.Millisecond, func() {
			calls.Add(1)
			fired <- struct{}{}
		})
	}()
	// 等待监听建立
	time.Sleep(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = os.WriteFile(filepath.Join(dir, "post.md"), []byte(strings.Repeat("x", i+1)), 0o644)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("watch callback never fired")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one debounced call, got %d", n)
	}
	cancel()
	if err := <-ready; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
