package session

import "time"

// SetClock 測試用：替換時間來源
func (c *Coordinator) SetClock(now func() time.Time) {
	c.registry.now = now
}
