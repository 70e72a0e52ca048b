package collector

import (
	"context"
	"time"

	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/sirupsen/logrus"
)

// ReapCollector drops registrations whose editor process has exited
// without sending a drop request.
type ReapCollector struct {
	interval time.Duration
	logger   *logrus.Entry
}

// NewReapCollector creates a ReapCollector polling at interval.
func NewReapCollector(interval time.Duration, logger *logrus.Entry) *ReapCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReapCollector{interval: interval, logger: logger}
}

// Name returns the collector's name.
func (c *ReapCollector) Name() string { return "reaper" }

// Run polls client PIDs until ctx is cancelled.
func (c *ReapCollector) Run(ctx context.Context, st *state.State) error {
	// Polling is cheap for PID checks
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, root := range st.Reap() {
				c.logger.WithField("root", root).Info("Closed project of exited clients")
			}
		}
	}
}
