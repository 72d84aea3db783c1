package attendance

import (
	"time"

	"rfidattend/internal/metrics"
)

// observe runs fn and records its latency under op.
func observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreCalls.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}
