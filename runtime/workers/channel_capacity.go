package workers

import (
	"context"
	"log/slog"
	"market-chat/observability"
	"reflect"
	"time"
)

const defaultMetricInterval = 5 * time.Second

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically samples the length of the internal
// queues. Reading len and cap of a channel never blocks, so sampling does
// not interfere with producers or consumers.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metrics        *observability.Metrics
	metricInterval time.Duration
	// warnRatio is the fill ratio above which a queue is logged at warn level.
	warnRatio float64
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, metrics *observability.Metrics,
	metricInterval time.Duration) *ChannelCapacityWorker {
	if metricInterval <= 0 {
		metricInterval = defaultMetricInterval
	}
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metrics:        metrics,
		metricInterval: metricInterval,
		warnRatio:      0.8,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample records the current length of every channel once.
func (w *ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.metrics.QueueLength(nc.Name, length)
		if capacity > 0 && float64(length) >= w.warnRatio*float64(capacity) {
			w.log.Warn("Queue almost full", "queue", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
