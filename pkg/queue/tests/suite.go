// Package tests provides a shared conformance suite run against every queue
// driver adapter, mirroring how pkg/test.Suite is shared across this
// module's other packages.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/stretchr/testify/require"
)

// RunQueueTests exercises the common Queue contract: publish, consume,
// depth, and health. Adapter-specific behavior (partitioning, delay
// handling) is left to each adapter's own tests.
func RunQueueTests(t *testing.T, q queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, q.Connect(ctx))
	require.True(t, q.Healthy(ctx))

	const queueName = "conformance-test"

	id, err := q.Publish(ctx, queueName, &queue.Message{
		CorrelationID: "cid-1",
		Payload:       []byte(`{"hello":"world"}`),
	}, queue.PublishOptions{Priority: 5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	depth, err := q.GetQueueDepth(ctx, queueName)
	require.NoError(t, err)
	require.GreaterOrEqual(t, depth, int64(0))

	received := make(chan *queue.Message, 1)
	consumeCtx, stopConsume := context.WithTimeout(ctx, 2*time.Second)
	defer stopConsume()

	go func() {
		_ = q.Consume(consumeCtx, queueName, "conformance-group", func(ctx context.Context, msg *queue.Message) error {
			received <- msg
			return nil
		}, queue.ConsumeOptions{BatchSize: 1})
	}()

	select {
	case msg := <-received:
		require.Equal(t, "cid-1", msg.CorrelationID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, q.Disconnect(ctx))
}
