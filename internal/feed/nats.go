package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn *nats.Conn 的子集，便於測試
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher 以 core NATS 發佈（at-most-once，不需要 JetStream）
type NATSPublisher struct {
	conn natsConn
}

// DialNATS 連接 NATS
//
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func DialNATS(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return NewNATSPublisher(conn), nil
}

// NewNATSPublisher 使用既有連線
func NewNATSPublisher(conn natsConn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish core NATS 的發佈只寫入客戶端緩衝，不會阻塞
func (p *NATSPublisher) Publish(_ context.Context, subject string, payload []byte) error {
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
