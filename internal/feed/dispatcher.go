package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-chess-session/internal/session"
	"github.com/koopa0/system-design/14-chess-session/pkg/logger"
)

type message struct {
	subject string
	payload []byte
}

// Dispatcher 把生命週期事件序列化後交給背景 goroutine 發佈
type Dispatcher struct {
	publisher Publisher
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan message
	wg     sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// DispatcherStats 發佈統計
type DispatcherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// NewDispatcher 創建並啟動發佈器
func NewDispatcher(publisher Publisher, prefix string, buffer int, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	d := &Dispatcher{
		publisher: publisher,
		prefix:    prefix,
		timeout:   timeout,
		logger:    log,
		queue:     make(chan message, buffer),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Observe 非阻塞入列；緩衝滿時丟棄
func (d *Dispatcher) Observe(evt session.Lifecycle) {
	payload, err := json.Marshal(evt)
	if err != nil {
		d.logger.Error("序列化生命週期事件失敗", logger.KeySessionID, evt.SessionID, logger.KeyError, err)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- message{subject: Subject(d.prefix, evt.Kind), payload: payload}:
	default:
		d.dropped.Add(1)
		d.logger.Warn("事件佇列已滿，丟棄事件", logger.KeySessionID, evt.SessionID, "kind", evt.Kind)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.publisher.Publish(ctx, msg.subject, msg.payload)
		cancel()

		if err != nil {
			d.failed.Add(1)
			d.logger.Warn("發佈事件失敗", "subject", msg.subject, logger.KeyError, err)
			continue
		}
		d.published.Add(1)
	}
}

// Stats 統計資訊
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Published: d.published.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// Stop 發完剩餘事件後關閉 Publisher
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}
