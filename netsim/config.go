package netsim

import (
	"sync"
	"time"
)

// Config holds the hot-reloadable, process-wide fault parameters of a
// Network.
type Config struct {
	// PacketLossRate is the Bernoulli drop probability applied to every
	// admitted inter-node send.
	PacketLossRate float64
	// SendLatencyMin and SendLatencyMax bound the uniform latency draw
	// applied to every admitted send. SendLatencyMin must be <= SendLatencyMax
	// and both must be non-negative.
	SendLatencyMin time.Duration
	SendLatencyMax time.Duration
}

// DefaultConfig returns the zero-fault, low-latency configuration new
// networks start with.
func DefaultConfig() Config {
	return Config{
		PacketLossRate: 0,
		SendLatencyMin: time.Millisecond,
		SendLatencyMax: 10 * time.Millisecond,
	}
}

// Stats counts admitted sends.
type Stats struct {
	// MsgCount is the number of sends that passed fault admission, i.e. the
	// number of timers scheduled for delivery (not the number of messages
	// actually delivered, which may be lower if the destination mailbox is
	// closed before the timer fires).
	MsgCount uint64
}

type configState struct {
	mu     sync.Mutex
	config Config
	stats  Stats
}

func newConfigState() *configState {
	return &configState{config: DefaultConfig()}
}

func (c *configState) snapshot() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *configState) update(f func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.config)
}

func (c *configState) stat() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *configState) incMsgCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MsgCount++
}
