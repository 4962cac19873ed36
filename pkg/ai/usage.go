package ai

import (
	"math"
	"sync"
)

// Usage accumulates the metrics of every request since the last reset. The
// zero value is ready to use; provider clients embed it to implement
// ResetMetrics and GetMetrics.
type Usage struct {
	mu sync.Mutex
	m  ModelMetrics
}

func (u *Usage) ResetMetrics() {
	u.mu.Lock()
	u.m = ModelMetrics{}
	u.mu.Unlock()
}

func (u *Usage) GetMetrics() ModelMetrics {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.m
}

// Record adds one request. Requests is counted here; the value in m is
// ignored.
func (u *Usage) Record(m ModelMetrics) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.m.InputTokens += m.InputTokens
	u.m.OutputTokens += m.OutputTokens
	u.m.TotalTokens += m.TotalTokens
	u.m.DurationMs += m.DurationMs
	u.m.Requests++

	if u.m.DurationMs > 0 {
		perSecond := float64(u.m.TotalTokens) * 1000 / float64(u.m.DurationMs)
		u.m.TokenPerSecond = float32(math.Round(perSecond*100) / 100)
	}
}
