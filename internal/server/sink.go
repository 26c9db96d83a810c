package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kayblog/internal/logx"
	"kayblog/internal/player"
)

var (
	ErrNoClient    = errors.New("no audio client connected")
	ErrInterrupted = errors.New("playback request interrupted")
	ErrClientGone  = errors.New("audio client disconnected")
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// message 为 /ws/player 上双向传递的消息。
//
// 下行：hello / source / play / pause / seek / volume / state
// 上行：played（携带 play 的 id，失败时带 error）/ ended
type message struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	URL     string           `json:"url,omitempty"`
	Seconds float64          `json:"seconds,omitempty"`
	Value   *float64         `json:"value,omitempty"`
	Error   string           `json:"error,omitempty"`
	State   *player.Snapshot `json:"state,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsClient) send(m message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(m)
}

// RemoteSink 把浏览器里的 audio 元素作为 player.Sink。
// 同一时间只有一个客户端，新连接会顶替旧连接。
type RemoteSink struct {
	mu      sync.Mutex
	client  *wsClient
	pending map[string]chan error
	source  string
	volume  *float64
	onEnded func()
}

func NewRemoteSink() *RemoteSink {
	return &RemoteSink{pending: map[string]chan error{}}
}

// OnEnded 设置播放结束回调，在独立 goroutine 中调用。
func (s *RemoteSink) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *RemoteSink) current() *wsClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *RemoteSink) push(m message) {
	c := s.current()
	if c == nil {
		return
	}
	if err := c.send(m); err != nil {
		logx.Debugf("推送 %s 到客户端 %s 失败：%v", m.Type, c.id, err)
	}
}

// failPendingLocked 结束所有等待中的 Play。
func (s *RemoteSink) failPendingLocked(err error) {
	for id, ch := range s.pending {
		ch <- err
		delete(s.pending, id)
	}
}

func (s *RemoteSink) SetSource(url string) {
	s.mu.Lock()
	s.source = url
	s.failPendingLocked(ErrInterrupted)
	s.mu.Unlock()
	s.push(message{Type: "source", URL: url})
}

// Play 发送播放指令并等待客户端回复 played。
func (s *RemoteSink) Play(ctx context.Context) error {
	s.mu.Lock()
	c := s.client
	if c == nil {
		s.mu.Unlock()
		return ErrNoClient
	}
	id := uuid.NewString()
	ch := make(chan error, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	if err := c.send(message{Type: "play", ID: id}); err != nil {
		s.drop(id)
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		s.drop(id)
		return ctx.Err()
	}
}

func (s *RemoteSink) drop(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *RemoteSink) Pause() {
	s.mu.Lock()
	s.failPendingLocked(ErrInterrupted)
	s.mu.Unlock()
	s.push(message{Type: "pause"})
}

func (s *RemoteSink) Seek(seconds float64) {
	s.push(message{Type: "seek", Seconds: seconds})
}

func (s *RemoteSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = &v
	s.mu.Unlock()
	s.push(message{Type: "volume", Value: &v})
}

// Broadcast 推送状态快照，作为 player.WithListener 的回调。
func (s *RemoteSink) Broadcast(snap player.Snapshot) {
	s.push(message{Type: "state", State: &snap})
}

// ServeHTTP 升级为 websocket 并接管音频输出。
func (s *RemoteSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warnf("websocket 升级失败：%v", err)
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn}

	s.mu.Lock()
	old := s.client
	s.client = c
	s.failPendingLocked(ErrClientGone)
	src, vol := s.source, s.volume
	s.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
	logx.Infof("音频客户端已连接：%s", c.id)

	// 新客户端先同步音源与音量
	if err := c.send(message{Type: "hello", ID: c.id}); err != nil {
		s.detach(c)
		return
	}
	if src != "" {
		_ = c.send(message{Type: "source", URL: src})
	}
	if vol != nil {
		_ = c.send(message{Type: "volume", Value: vol})
	}
	s.readLoop(c)
}

func (s *RemoteSink) readLoop(c *wsClient) {
	defer s.detach(c)
	for {
		var m message
		if err := c.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logx.Debugf("客户端 %s 读取失败：%v", c.id, err)
			}
			return
		}
		switch m.Type {
		case "played":
			var res error
			if m.Error != "" {
				res = errors.New(m.Error)
			}
			s.mu.Lock()
			if ch, ok := s.pending[m.ID]; ok {
				ch <- res
				delete(s.pending, m.ID)
			}
			s.mu.Unlock()
		case "ended":
			s.mu.Lock()
			fn := s.onEnded
			s.mu.Unlock()
			if fn != nil {
				go fn()
			}
		default:
			logx.Debugf("忽略未知消息：%s", m.Type)
		}
	}
}

func (s *RemoteSink) detach(c *wsClient) {
	s.mu.Lock()
	if s.client == c {
		s.client = nil
		s.failPendingLocked(ErrClientGone)
	}
	s.mu.Unlock()
	_ = c.conn.Close()
	logx.Infof("音频客户端已断开：%s", c.id)
}

// Close 断开当前客户端。
func (s *RemoteSink) Close() {
	if c := s.current(); c != nil {
		s.detach(c)
	}
}
