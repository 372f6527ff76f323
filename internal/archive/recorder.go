package archive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
)

// Recorder 訂閱對局關閉事件並非同步寫入 Store
//
// Observe 在對局鎖內被呼叫，只做非阻塞的入列；緩衝滿時丟棄並記錄。
type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Game
	wg     sync.WaitGroup

	saved   atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// RecorderStats 歸檔統計
type RecorderStats struct {
	Saved   uint64 `json:"saved"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// NewRecorder 創建並啟動歸檔寫入器
func NewRecorder(store Store, buffer int, timeout time.Duration, log *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	r := &Recorder{
		store:   store,
		logger:  log,
		timeout: timeout,
		queue:   make(chan Game, buffer),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Observe 只處理曾經有人入座的對局關閉事件
func (r *Recorder) Observe(evt session.Lifecycle) {
	if evt.Kind != session.LifecycleClosed || evt.Summary == nil || !evt.Summary.EverSeated {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- FromSummary(evt.SessionID, evt.Summary):
	default:
		r.dropped.Add(1)
		r.logger.Warn("歸檔佇列已滿，丟棄對局", logger.KeySessionID, evt.SessionID)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for g := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.store.Save(ctx, g)
		cancel()

		if err != nil {
			r.failed.Add(1)
			r.logger.Error("歸檔對局失敗", logger.KeySessionID, g.SessionID, logger.KeyError, err)
			continue
		}
		r.saved.Add(1)
		r.logger.Debug("對局已歸檔", logger.KeySessionID, g.SessionID, "moves", len(g.Moves))
	}
}

// Stats 統計資訊
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Saved:   r.saved.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

// Stop 停止接收並寫完佇列中剩餘的對局
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}
