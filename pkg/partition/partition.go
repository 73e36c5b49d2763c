// Package partition assigns messages to partitions by hashing a partition
// key and decides, per worker, whether this process owns the resulting
// partition. It also tracks best-effort sticky-session affinity so repeat
// traffic for a session prefers the worker that last handled it.
package partition

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/openhqm/openhqm/pkg/dotpath"
	"github.com/openhqm/openhqm/pkg/logger"
)

const (
	StrategyHash       = "hash"
	StrategyKey        = "key"
	StrategyRoundRobin = "round_robin"
	StrategySticky     = "sticky"

	SkipPolicyAck     = "ack"
	SkipPolicyRequeue = "requeue"
)

// Config configures the partition manager.
type Config struct {
	Enabled           bool          `env:"ENABLED" env-default:"false"`
	PartitionCount    int           `env:"PARTITION_COUNT" env-default:"16"`
	Strategy          string        `env:"STRATEGY" env-default:"hash"`
	PartitionKeyField string        `env:"PARTITION_KEY_FIELD" env-default:"metadata.partition_key"`
	SessionKeyField   string        `env:"SESSION_KEY_FIELD" env-default:"metadata.session_id"`
	StickySessionTTL  time.Duration `env:"STICKY_SESSION_TTL" env-default:"300s"`
	SkipPolicy        string        `env:"SKIP_POLICY" env-default:"ack"`
}

// SessionInfo is in-process, best-effort sticky-session state. It is never
// persisted: losing it on restart only degrades affinity, it does not break
// correctness, since routing by partition hash is deterministic.
type SessionInfo struct {
	SessionID     string
	PartitionID   int
	WorkerID      string
	LastSeen      time.Time
	MessageCount  int64
}

// Manager assigns partitions and tracks session affinity for one worker
// process.
type Manager struct {
	cfg      Config
	workerID string

	mu       sync.RWMutex
	owned    map[int]bool
	sessions map[string]*SessionInfo
}

// NewManager builds a manager that initially owns the given partitions.
func NewManager(cfg Config, workerID string, ownedPartitions []int) *Manager {
	owned := make(map[int]bool, len(ownedPartitions))
	for _, p := range ownedPartitions {
		owned[p] = true
	}
	return &Manager{
		cfg:      cfg,
		workerID: workerID,
		owned:    owned,
		sessions: make(map[string]*SessionInfo),
	}
}

// OwnedPartitions returns the partition set this worker owns, computed from
// its index among W workers: partitions {p : p mod W == index}.
func OwnedPartitions(partitionCount, workerIndex, workerCount int) []int {
	var owned []int
	for p := 0; p < partitionCount; p++ {
		if p%workerCount == workerIndex {
			owned = append(owned, p)
		}
	}
	return owned
}

// SetAssignedPartitions replaces the owned partition set, for use by an
// external coordinator rebalancing ownership.
func (m *Manager) SetAssignedPartitions(partitions []int) {
	owned := make(map[int]bool, len(partitions))
	for _, p := range partitions {
		owned[p] = true
	}
	m.mu.Lock()
	m.owned = owned
	m.mu.Unlock()
}

// P computes the partition id for key. hash/sticky/key strategies hash the
// key with SHA-256 mod N; round_robin buckets by the current millisecond
// mod N, which is not true round-robin across workers and is documented as
// a weaker strategy than hash.
func (m *Manager) P(key string) int {
	if m.cfg.Strategy == StrategyRoundRobin {
		return int(time.Now().UnixMilli() % int64(m.cfg.PartitionCount))
	}
	return hashMod(key, m.cfg.PartitionCount)
}

func hashMod(key string, n int) int {
	if n <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(key))
	h := binary.BigEndian.Uint64(sum[:8])
	return int(h % uint64(n))
}

// ShouldProcess implements spec.md's 3-step decision: disabled always
// processes; a message with neither partition nor session key always
// processes (logged); otherwise the partition hash decides ownership.
func (m *Manager) ShouldProcess(message interface{}) bool {
	if !m.cfg.Enabled {
		return true
	}

	key, ok := m.partitionKey(message)
	if !ok {
		logger.L().Warn("partition key missing, processing unconditionally",
			"partition_key_field", m.cfg.PartitionKeyField,
			"session_key_field", m.cfg.SessionKeyField)
		return true
	}

	p := m.P(key)
	m.mu.RLock()
	owns := m.owned[p]
	m.mu.RUnlock()
	return owns
}

func (m *Manager) partitionKey(message interface{}) (string, bool) {
	if v, ok := dotpath.GetString(message, m.cfg.PartitionKeyField); ok && v != "" {
		return v, true
	}
	if v, ok := dotpath.GetString(message, m.cfg.SessionKeyField); ok && v != "" {
		return v, true
	}
	return "", false
}

// SkipPolicy returns the configured behavior for a worker receiving a
// message it does not own: "ack" (default) or "requeue".
func (m *Manager) SkipPolicy() string {
	if m.cfg.SkipPolicy == "" {
		return SkipPolicyAck
	}
	return m.cfg.SkipPolicy
}

// TrackSession upserts session affinity state on a successfully accepted
// message carrying a session id.
func (m *Manager) TrackSession(message interface{}) {
	sessionID, ok := dotpath.GetString(message, m.cfg.SessionKeyField)
	if !ok || sessionID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.sessions[sessionID]
	if !exists {
		info = &SessionInfo{
			SessionID:   sessionID,
			PartitionID: m.P(sessionID),
			WorkerID:    m.workerID,
		}
		m.sessions[sessionID] = info
	}
	info.LastSeen = time.Now()
	info.MessageCount++
}

// SweepExpiredSessions removes sessions idle longer than StickySessionTTL.
// Call periodically from a background ticker.
func (m *Manager) SweepExpiredSessions() int {
	cutoff := time.Now().Add(-m.cfg.StickySessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, info := range m.sessions {
		if info.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Stats reports diagnostic counters surfaced on the health endpoint.
type Stats struct {
	Enabled          bool `json:"enabled"`
	PartitionCount   int  `json:"partition_count"`
	OwnedPartitions  []int `json:"owned_partitions"`
	ActiveSessions   int  `json:"active_sessions"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := make([]int, 0, len(m.owned))
	for p := range m.owned {
		owned = append(owned, p)
	}

	return Stats{
		Enabled:         m.cfg.Enabled,
		PartitionCount:  m.cfg.PartitionCount,
		OwnedPartitions: owned,
		ActiveSessions:  len(m.sessions),
	}
}
