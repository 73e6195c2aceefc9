package workers

import (
	"log/slog"
	"market-chat/observability"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	// Given a queue holding three items and something that is not a channel
	queue := make(chan int, 4)
	queue <- 1
	queue <- 2
	queue <- 3
	worker := NewChannelCapacityWorker(log, []NamedChannel{
		{Name: "notifications", Channel: queue},
		{Name: "broken", Channel: 42},
	}, metrics, time.Second)

	// When sampling
	worker.Sample()

	// Then only the channel is recorded
	count, err := testutil.GatherAndCount(reg, "chat_queue_length")
	req.NoError(err)
	req.Equal(1, count)
	req.Len(queue, 3)
}
