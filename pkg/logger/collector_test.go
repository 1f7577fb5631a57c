package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	ch chan []AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		p.ch <- logs
	}
	return nil
}

func TestCollectorDeduplicatesRepeatedLogs(t *testing.T) {
	pub := &capturePublisher{ch: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // flush via threshold, not timer
		CountThreshold: 2,
		Topic:          "log_burst",
		Publisher:      pub,
	})
	defer c.Close()

	fields := map[string]interface{}{"symbol": "AAPL"}
	c.AddLog("warn", "poll failed", fields, "poller.go:90")
	c.AddLog("warn", "poll failed", fields, "poller.go:90")
	c.AddLog("warn", "poll failed", fields, "poller.go:90")
	// a second unique entry hits the threshold and triggers a flush
	c.AddLog("error", "scan failed", nil, "scanner.go:54")

	select {
	case logs := <-pub.ch:
		require.Len(t, logs, 2)
		byMsg := map[string]AggregatedLogEntry{}
		for _, l := range logs {
			byMsg[l.Message] = l
		}
		assert.Equal(t, 3, byMsg["poll failed"].Count)
		assert.Equal(t, 1, byMsg["scan failed"].Count)
	case <-time.After(2 * time.Second):
		t.Fatal("flush never reached the publisher")
	}
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &capturePublisher{ch: make(chan []AggregatedLogEntry, 1)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "log_burst",
		Publisher:      pub,
	})

	c.AddLog("warn", "one last thing", nil, "app.go:10")
	c.Close()

	select {
	case logs := <-pub.ch:
		require.Len(t, logs, 1)
		assert.Equal(t, "one last thing", logs[0].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not flush pending logs")
	}
}
