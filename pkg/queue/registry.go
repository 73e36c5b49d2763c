package queue

import (
	"fmt"
	"os"
	"sync"
)

// Factory builds a Queue from a driver-specific configuration blob. Adapters
// register themselves under a driver name; cmd/* looks the driver up by the
// QUEUE__TYPE env var instead of importing every adapter unconditionally.
type Factory func(cfg map[string]string) (Queue, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a driver factory under name. Intended to be called from an
// adapter package's init() or from cmd/* wiring for out-of-tree drivers.
// This is the compile-time equivalent of the original's dynamic module
// loading: a custom driver is a package that calls Register, not a class
// path resolved via reflection.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs a Queue for the named driver using the previously
// registered factory. Returns ErrInvalidConfig if no driver is registered
// under that name.
func New(name string, cfg map[string]string) (Queue, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrInvalidConfig(fmt.Sprintf("no queue driver registered under %q", name), nil)
	}
	return factory(cfg)
}

// DriverConfigFromEnv reads the env vars a given driver's factory expects
// and returns them as the map New/Register deal in. Centralized here so
// cmd/* stays a thin wiring layer instead of duplicating every adapter's
// env var names.
func DriverConfigFromEnv(driver string) map[string]string {
	switch driver {
	case DriverMemory:
		return map[string]string{"buffer_size": os.Getenv("OPENHQM_QUEUE__MEMORY_BUFFER_SIZE")}
	case DriverRedisStream:
		return map[string]string{
			"addr":     os.Getenv("OPENHQM_QUEUE__REDIS_ADDR"),
			"password": os.Getenv("OPENHQM_QUEUE__REDIS_PASSWORD"),
			"db":       os.Getenv("OPENHQM_QUEUE__REDIS_DB"),
		}
	case DriverKafka:
		return map[string]string{
			"brokers":        os.Getenv("OPENHQM_QUEUE__KAFKA_BROKERS"),
			"consumer_group": os.Getenv("OPENHQM_QUEUE__KAFKA_CONSUMER_GROUP"),
		}
	case DriverSQS:
		return map[string]string{"region": os.Getenv("OPENHQM_QUEUE__SQS_REGION")}
	case DriverEventHubs:
		return map[string]string{
			"connection_string": os.Getenv("OPENHQM_QUEUE__EVENTHUBS_CONNECTION_STRING"),
			"event_hub_name":    os.Getenv("OPENHQM_QUEUE__EVENTHUBS_NAME"),
		}
	case DriverPubSub:
		return map[string]string{"project_id": os.Getenv("OPENHQM_QUEUE__PUBSUB_PROJECT_ID")}
	case DriverMQTT:
		return map[string]string{
			"broker_url": os.Getenv("OPENHQM_QUEUE__MQTT_BROKER_URL"),
			"client_id":  os.Getenv("OPENHQM_QUEUE__MQTT_CLIENT_ID"),
		}
	default:
		return map[string]string{}
	}
}
