package memory_test

import (
	"testing"

	"github.com/openhqm/openhqm/pkg/queue/adapters/memory"
	"github.com/openhqm/openhqm/pkg/queue/tests"
)

func TestMemoryBroker(t *testing.T) {
	broker := memory.New(memory.Config{BufferSize: 100})
	defer broker.Close()

	tests.RunQueueTests(t, broker)
}
