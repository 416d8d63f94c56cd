package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []Message
	published []int64
}

func (s *fakeSource) FetchPending(_ context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.pending))
	return append([]Message(nil), s.pending[:n]...), nil
}

func (s *fakeSource) MarkPublished(_ context.Context, ids []int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	s.pending = s.pending[len(ids):]
	return nil
}

type fakeProducer struct {
	err  error
	sent []Message
}

func (p *fakeProducer) Publish(_ context.Context, msgs []Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msgs...)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelayOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes then marks in batches", func(t *testing.T) {
		source := &fakeSource{pending: []Message{{ID: 1, Key: "a"}, {ID: 2, Key: "b"}, {ID: 3, Key: "c"}}}
		producer := &fakeProducer{}
		metrics := NewMetrics(prometheus.NewRegistry())
		relay := NewRelay(source, producer, WithBatchSize(2), WithLogger(quietLogger()), WithMetrics(metrics))

		n, err := relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int64{1, 2}, source.published)

		n, err = relay.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, producer.sent, 3)
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MessagesRelayed))
	})

	t.Run("failed publish leaves messages pending", func(t *testing.T) {
		source := &fakeSource{pending: []Message{{ID: 1}}}
		producer := &fakeProducer{err: errors.New("broker down")}
		relay := NewRelay(source, producer, WithLogger(quietLogger()))

		_, err := relay.RelayOnce(ctx)
		require.Error(t, err)
		assert.Empty(t, source.published)
		assert.Len(t, source.pending, 1)
	})
}

func TestRunDrainsAndStops(t *testing.T) {
	source := &fakeSource{pending: []Message{{ID: 1}, {ID: 2}, {ID: 3}}}
	producer := &fakeProducer{}
	relay := NewRelay(source, producer, WithBatchSize(1), WithInterval(time.Hour), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.published) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPayloadFromDropsNetworkFields(t *testing.T) {
	p := PayloadFrom(audit.ComplianceEntry{
		ID:           7,
		Action:       audit.ComplianceStatusChanged,
		ResourceType: audit.ResourceApplication,
		ResourceID:   "app-1",
		IP:           "10.0.0.1",
		UserAgent:    "curl/8",
		Device:       "curl (desktop)",
	})
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "curl (desktop)", p.Device)
	assert.Equal(t, "application_status_changed", p.Action)
}
