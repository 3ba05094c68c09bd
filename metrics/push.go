package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// PushMetrics pushes the collected metrics to a prometheus pushgateway at url every
// period, until the context is canceled.
func PushMetrics(ctx context.Context, logger *zap.Logger, url string, period time.Duration, nodeID, prefix string) {
	pusher := push.New(url, "chronosync").Gatherer(prometheus.DefaultGatherer).
		Grouping("node", nodeID).
		Grouping("prefix", prefix)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pusher.PushContext(ctx); err != nil {
				logger.Warn("failed to push metrics", zap.String("url", url), zap.Error(err))
			}
		}
	}
}
