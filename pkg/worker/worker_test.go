package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/openhqm/openhqm/pkg/envelope"
	memqueue "github.com/openhqm/openhqm/pkg/queue/adapters/memory"
	memstore "github.com/openhqm/openhqm/pkg/statestore/adapters/memory"
	"github.com/openhqm/openhqm/pkg/processor"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/routing"
	"github.com/openhqm/openhqm/pkg/worker"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return f.fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func publishRequest(t *testing.T, q queue.Queue, qname string, msg *envelope.Message) {
	t.Helper()
	data, err := msg.Marshal()
	require.NoError(t, err)
	_, err = q.Publish(context.Background(), qname, &queue.Message{Payload: data, CorrelationID: msg.CorrelationID}, queue.PublishOptions{})
	require.NoError(t, err)
}

func TestWorkerCompletesHappyPath(t *testing.T) {
	q := memqueue.New(memqueue.Config{BufferSize: 10})
	store := memstore.New()

	engine, err := routing.NewEngine(routing.Config{
		Routes: []routing.Route{{Name: "default", Enabled: true, IsDefault: true, Endpoint: "echo"}},
	})
	require.NoError(t, err)

	doer := &fakeDoer{fn: func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		return jsonResponse(200, string(body)), nil
	}}
	endpoints := map[string]routing.Endpoint{"echo": {URL: "http://upstream/echo"}}
	proc := processor.New(processor.Config{ProxyEnabled: true, RoutingEnabled: true}, engine, nil, endpoints, doer)

	w := worker.New("worker-0", worker.Config{
		BatchSize: 1, TimeoutSeconds: 5, MaxRetries: 3,
		RetryDelayBase: time.Millisecond, RetryDelayMax: time.Second,
		ShutdownTimeout: time.Second,
	}, q, store, proc, time.Minute)

	msg := &envelope.Message{
		CorrelationID: "cid-1",
		Payload:       map[string]interface{}{"operation": "echo", "data": "hi"},
		SubmittedAt:   time.Now().UTC(),
	}
	publishRequest(t, q, "requests", msg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, "requests", "responses", "requests-dlq") }()

	require.Eventually(t, func() bool {
		var record envelope.ResponseRecord
		err := store.Get(context.Background(), envelope.ResponseRecordKey("cid-1"), &record)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var record envelope.ResponseRecord
	require.NoError(t, store.Get(context.Background(), envelope.ResponseRecordKey("cid-1"), &record))
	require.Equal(t, 200, record.StatusCode)
	require.Equal(t, "hi", record.Result["data"])

	var state envelope.RequestState
	require.NoError(t, store.Get(context.Background(), envelope.RequestStateKey("cid-1"), &state))
	require.Equal(t, envelope.StatusCompleted, state.Status)

	// Stop the worker only after reading: shutdown closes the queue and store.
	cancel()
	<-done
}

func TestWorkerSendsToDLQOnUnknownEndpoint(t *testing.T) {
	q := memqueue.New(memqueue.Config{BufferSize: 10})
	store := memstore.New()

	proc := processor.New(processor.Config{ProxyEnabled: true}, nil, nil, map[string]routing.Endpoint{}, &fakeDoer{})

	w := worker.New("worker-0", worker.Config{
		BatchSize: 1, TimeoutSeconds: 5, MaxRetries: 3,
		RetryDelayBase: time.Millisecond, RetryDelayMax: time.Second,
		ShutdownTimeout: time.Second,
	}, q, store, proc, time.Minute)

	msg := &envelope.Message{
		CorrelationID: "cid-2",
		Payload:       map[string]interface{}{},
		Metadata:      envelope.Metadata{Endpoint: "missing"},
		SubmittedAt:   time.Now().UTC(),
	}
	publishRequest(t, q, "requests", msg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, "requests", "responses", "requests-dlq") }()

	require.Eventually(t, func() bool {
		depth, _ := q.GetQueueDepth(context.Background(), "requests-dlq")
		return depth > 0
	}, 2*time.Second, 10*time.Millisecond)

	var state envelope.RequestState
	require.NoError(t, store.Get(context.Background(), envelope.RequestStateKey("cid-2"), &state))
	require.Equal(t, envelope.StatusFailed, state.Status)

	dlqCtx, dlqCancel := context.WithCancel(context.Background())
	var dlqPayload map[string]interface{}
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- q.Consume(dlqCtx, "requests-dlq", "test", func(_ context.Context, m *queue.Message) error {
			require.NoError(t, json.Unmarshal(m.Payload, &dlqPayload))
			dlqCancel()
			return nil
		}, queue.ConsumeOptions{})
	}()
	<-consumeErr

	require.Equal(t, "cid-2", dlqPayload["correlation_id"])
	require.Contains(t, dlqPayload, "failed_at")
	require.Contains(t, dlqPayload, "worker_id")
	require.Contains(t, dlqPayload, "error")

	// Stop the worker only after reading: shutdown closes the queue and store.
	cancel()
	<-done
}

func TestMetadataMapRoundTrip(t *testing.T) {
	m := envelope.Metadata{Priority: 5, Endpoint: "ep", SessionID: "s1"}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	var out envelope.Metadata
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, m, out)
}
