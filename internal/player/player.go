// 包 player 实现全站唯一的播放控制器：一个共享音频输出（Sink）、
// 播放/暂停/切歌状态机、顺序/随机队列遍历以及音量持久化。
//
// 所有状态迁移由互斥锁串行化；Sink.Play 可能阻塞（等待音频真正开始），
// 在锁外执行，并用单调递增的请求令牌丢弃过期的结果。
package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/songs"
)

var (
	ErrNoSong      = errors.New("no current song")
	ErrUnsupported = errors.New("unsupported platform")
	// ErrSuperseded 表示本次播放请求在完成前已被更新的请求取代，其结果被丢弃。
	ErrSuperseded = errors.New("play request superseded")
)

const (
	DefaultVolume  = 0.25
	NoticeDuration = 3 * time.Second
	VolumeDebounce = 500 * time.Millisecond
)

const (
	noticePlayFailed = "播放失败，请稍后重试"
)

type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Mode int

const (
	Sequence Mode = iota
	Shuffle
)

func (m Mode) String() string {
	if m == Shuffle {
		return "shuffle"
	}
	return "sequence"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Sink 为唯一的音频输出（浏览器 audio 元素或其它播放器）。
// Play 阻塞直到播放真正开始或失败。
type Sink interface {
	SetSource(url string)
	Play(ctx context.Context) error
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
}

// VolumeStore 持久化音量。ok 为 false 表示从未保存过。
type VolumeStore interface {
	LoadVolume() (v float64, ok bool, err error)
	SaveVolume(v float64) error
}

// Snapshot 为某一时刻的会话状态副本。
type Snapshot struct {
	State       State        `json:"state"`
	CurrentSong *model.Song  `json:"currentSong"`
	IsPlaying   bool         `json:"isPlaying"`
	Volume      float64      `json:"volume"`
	Mode        Mode         `json:"mode"`
	Queue       []model.Song `json:"queue"`
	Notice      string       `json:"notice,omitempty"`
}

// Timer 为可取消的定时器，*time.Timer 满足该接口。
type Timer interface{ Stop() bool }

// AfterFunc 与 time.AfterFunc 同义，测试中替换为手动时钟。
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Controller)

// WithRand 替换随机模式的取号函数，返回 [0,n)。
func WithRand(intn func(n int) int) Option {
	return func(c *Controller) { c.intn = intn }
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Controller) { c.after = fn }
}

// WithListener 在每次状态变化后以快照回调（锁外调用）。
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.listener = fn }
}

// Controller 为播放会话。零值不可用，使用 New 创建。
type Controller struct {
	mu       sync.Mutex
	sink     Sink
	store    VolumeStore
	intn     func(int) int
	after    AfterFunc
	listener func(Snapshot)

	state   State
	current *model.Song
	playing bool
	queue   []model.Song
	mode    Mode
	volume  float64
	notice  string

	token      uint64
	noticeGen  uint64
	noticeStop Timer
	volGen     uint64
	volStop    Timer
	volDirty   bool
}

// New 创建控制器并从 store 恢复音量。store 可为 nil（不持久化）。
func New(sink Sink, store VolumeStore, opts ...Option) *Controller {
	c := &Controller{
		sink:   sink,
		store:  store,
		intn:   rand.Intn,
		after:  func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		volume: DefaultVolume,
	}
	for _, o := range opts {
		o(c)
	}
	if store != nil {
		v, ok, err := store.LoadVolume()
		switch {
		case err != nil:
			logx.Warnf("读取音量失败，使用默认值：%v", err)
		case ok:
			c.volume = clamp(v)
		}
	}
	sink.SetVolume(c.volume)
	return c
}

// Snapshot 返回当前状态副本。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     c.state,
		IsPlaying: c.playing,
		Volume:    c.volume,
		Mode:      c.mode,
		Queue:     append([]model.Song(nil), c.queue...),
		Notice:    c.notice,
	}
	if c.current != nil {
		song := *c.current
		s.CurrentSong = &song
	}
	return s
}

func (c *Controller) unlockAndNotify() {
	s := c.snapshotLocked()
	c.mu.Unlock()
	if c.listener != nil {
		c.listener(s)
	}
}

// Play 播放歌曲；queue 非 nil 时替换队列。
// 与当前歌曲相同时原地切换播放/暂停，不重新加载音源。
func (c *Controller) Play(ctx context.Context, song model.Song, queue []model.Song) error {
	c.mu.Lock()
	if queue != nil {
		c.queue = append([]model.Song(nil), queue...)
	}
	if c.current != nil && c.current.ID == song.ID {
		return c.toggleLocked(ctx)
	}
	return c.startLocked(ctx, song)
}

// TogglePlay 暂停或恢复当前歌曲。
func (c *Controller) TogglePlay(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNoSong
	}
	return c.toggleLocked(ctx)
}

// toggleLocked 要求持有锁，返回前释放。
func (c *Controller) toggleLocked(ctx context.Context) error {
	if c.playing || c.state == Loading {
		c.token++ // 作废仍在进行的加载
		c.sink.Pause()
		c.playing = false
		c.state = Paused
		c.unlockAndNotify()
		return nil
	}
	c.token++
	tok := c.token
	id := c.current.ID
	c.mu.Unlock()

	err := c.sink.Play(ctx)

	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		// 恢复失败保留当前歌曲
		c.playing = false
		c.failLocked(noticePlayFailed)
		c.unlockAndNotify()
		return fmt.Errorf("resume %s: %w", id, err)
	}
	c.playing = true
	c.state = Playing
	c.unlockAndNotify()
	return nil
}

// startLocked 要求持有锁，返回前释放。
func (c *Controller) startLocked(ctx context.Context, song model.Song) error {
	if !songs.Supported(song.Source) {
		c.failLocked(fmt.Sprintf("不支持播放此平台 (%s) 的音乐", song.Source))
		c.unlockAndNotify()
		return fmt.Errorf("play %s: %w: %s", song.ID, ErrUnsupported, song.Source)
	}
	c.token++
	tok := c.token
	c.current = &song
	c.playing = false
	c.state = Loading
	c.sink.SetSource(songs.StreamURL(song))
	c.unlockAndNotify()

	err := c.sink.Play(ctx)

	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.playing = false
		c.failLocked(noticePlayFailed)
		c.unlockAndNotify()
		return fmt.Errorf("play %s: %w", song.ID, err)
	}
	c.playing = true
	c.state = Playing
	c.unlockAndNotify()
	return nil
}

// Next 切到下一首可播放的歌曲；没有可播放的歌曲时什么也不做。
func (c *Controller) Next(ctx context.Context) error { return c.step(ctx, 1) }

// Previous 切到上一首可播放的歌曲。
func (c *Controller) Previous(ctx context.Context) error { return c.step(ctx, -1) }

func (c *Controller) step(ctx context.Context, dir int) error {
	c.mu.Lock()
	cand, ok := c.pickLocked(dir)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	return c.startLocked(ctx, cand)
}

// pickLocked 顺序模式按下标环形前进/后退，随机模式每一步重新抽号（可能重复）。
// 最多尝试队列长度次，跳过不支持的平台。
func (c *Controller) pickLocked(dir int) (model.Song, bool) {
	n := len(c.queue)
	if c.current == nil || n == 0 || !c.hasOtherPlayableLocked() {
		return model.Song{}, false
	}
	idx := -1
	for i, s := range c.queue {
		if s.ID == c.current.ID {
			idx = i
			break
		}
	}
	if idx < 0 && dir < 0 {
		idx = 0
	}
	for attempt := 0; attempt < n; attempt++ {
		if c.mode == Shuffle {
			idx = c.intn(n)
		} else {
			idx = ((idx+dir)%n + n) % n
		}
		if cand := c.queue[idx]; songs.Supported(cand.Source) {
			return cand, true
		}
	}
	return model.Song{}, false
}

func (c *Controller) hasOtherPlayableLocked() bool {
	for _, s := range c.queue {
		if s.ID != c.current.ID && songs.Supported(s.Source) {
			return true
		}
	}
	return false
}

// HandleEnded 响应音频自然播放结束：自动切到下一首。
func (c *Controller) HandleEnded(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}
	c.playing = false
	c.state = Paused
	cand, ok := c.pickLocked(1)
	if !ok {
		c.unlockAndNotify()
		return nil
	}
	return c.startLocked(ctx, cand)
}

// ToggleMode 在顺序/随机之间切换，不影响当前播放。
func (c *Controller) ToggleMode() Mode {
	c.mu.Lock()
	if c.mode == Sequence {
		c.mode = Shuffle
	} else {
		c.mode = Sequence
	}
	m := c.mode
	c.unlockAndNotify()
	return m
}

// Seek 跳转到指定秒数。
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNoSong
	}
	c.sink.Seek(max(0, seconds))
	return nil
}

// SetVolume 立即生效并立即持久化。
func (c *Controller) SetVolume(v float64) error {
	c.mu.Lock()
	v = clamp(v)
	c.volume = v
	c.sink.SetVolume(v)
	c.cancelVolumeLocked()
	c.unlockAndNotify()
	return c.save(v)
}

// AdjustVolume 用于拖动音量条：输出立即生效，持久化合并为每 500ms 最多一次写入。
func (c *Controller) AdjustVolume(v float64) {
	c.mu.Lock()
	v = clamp(v)
	c.volume = v
	c.sink.SetVolume(v)
	c.cancelVolumeLocked()
	c.volDirty = true
	gen := c.volGen
	c.volStop = c.after(VolumeDebounce, func() { c.flushVolume(gen) })
	c.unlockAndNotify()
}

func (c *Controller) cancelVolumeLocked() {
	c.volGen++
	c.volDirty = false
	if c.volStop != nil {
		c.volStop.Stop()
		c.volStop = nil
	}
}

func (c *Controller) flushVolume(gen uint64) {
	c.mu.Lock()
	if gen != c.volGen || !c.volDirty {
		c.mu.Unlock()
		return
	}
	c.volDirty = false
	c.volStop = nil
	v := c.volume
	c.mu.Unlock()
	if err := c.save(v); err != nil {
		logx.Warnf("保存音量失败：%v", err)
	}
}

func (c *Controller) save(v float64) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveVolume(v); err != nil {
		return fmt.Errorf("save volume: %w", err)
	}
	return nil
}

// failLocked 进入 Error 并显示提示，3 秒后自动消失。
func (c *Controller) failLocked(msg string) {
	c.notice = msg
	c.state = Error
	c.noticeGen++
	gen := c.noticeGen
	if c.noticeStop != nil {
		c.noticeStop.Stop()
	}
	c.noticeStop = c.after(NoticeDuration, func() { c.dismiss(gen) })
}

func (c *Controller) dismiss(gen uint64) {
	c.mu.Lock()
	if gen != c.noticeGen {
		c.mu.Unlock()
		return
	}
	c.notice = ""
	c.noticeStop = nil
	if c.state == Error {
		c.state = c.restingLocked()
	}
	c.unlockAndNotify()
}

// restingLocked 为提示消失后的稳定状态。
func (c *Controller) restingLocked() State {
	switch {
	case c.playing:
		return Playing
	case c.current != nil:
		return Paused
	default:
		return Idle
	}
}

// Notify 显示一条临时提示，不改变播放状态。
func (c *Controller) Notify(msg string) {
	c.mu.Lock()
	c.notice = msg
	c.noticeGen++
	gen := c.noticeGen
	if c.noticeStop != nil {
		c.noticeStop.Stop()
	}
	c.noticeStop = c.after(NoticeDuration, func() { c.dismiss(gen) })
	c.unlockAndNotify()
}

// Close 停止计时器并写出尚未持久化的音量。
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.noticeStop != nil {
		c.noticeStop.Stop()
		c.noticeStop = nil
	}
	dirty := c.volDirty
	v := c.volume
	c.cancelVolumeLocked()
	c.mu.Unlock()
	if dirty {
		return c.save(v)
	}
	return nil
}

func clamp(v float64) float64 {
	if v != v { // NaN
		return DefaultVolume
	}
	return max(0, min(1, v))
}
