package aggregates

import (
	"time"

	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

// Hooks observes every Writer.Write. Rejected fires before Observed for
// writes refused with validation, permission, not-found or conflict errors.
type Hooks interface {
	Observed(op, outcome string, dur time.Duration)
	Rejected(op string, code apierr.Code)
}

type noopHooks struct{}

func (noopHooks) Observed(string, string, time.Duration) {}
func (noopHooks) Rejected(string, apierr.Code)           {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports writes to metrics; nil metrics disables it.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) Observed(op, outcome string, dur time.Duration) {
	h.metrics.ObserveWrite(op, outcome, dur)
}

func (h metricsHooks) Rejected(op string, code apierr.Code) {
	h.metrics.IncWriteRejection(op, string(code))
}
