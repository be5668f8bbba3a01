package registry

import (
	"sync"
	"time"
)

// PortCounters is one raw counter snapshot reported by a device
type PortCounters struct {
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	RxDropped uint64
	TxDropped uint64
	Timestamp time.Time
}

// PortMetrics is the derived per-port measurement between two snapshots
type PortMetrics struct {
	BandwidthMbps float64 // rx + tx
	LossRatio     float64
	UpdatedAt     time.Time
}

type deviceState struct {
	id          string
	connectedAt time.Time
	counters    map[int]PortCounters
	metrics     map[int]PortMetrics
}

// Registry tracks connected devices and their per-port counter snapshots.
// Writers are the southbound stats handlers; readers are the decision loop.
// Devices may join and leave at any time.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
}

// New creates an empty registry
func New() *Registry {
	return &Registry{devices: make(map[string]*deviceState)}
}

// AddDevice registers a device after its handshake
func (r *Registry) AddDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[id]; exists {
		return
	}
	r.devices[id] = &deviceState{
		id:          id,
		connectedAt: time.Now(),
		counters:    make(map[int]PortCounters),
		metrics:     make(map[int]PortMetrics),
	}
}

// RemoveDevice drops a device and all its port state
func (r *Registry) RemoveDevice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Has reports whether the device is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[id]
	return ok
}

// DeviceIDs returns the ids of all registered devices
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered devices
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// UpdatePortCounters ingests a counter snapshot and recomputes the derived
// metrics against the previous snapshot. Guards: a non-positive elapsed
// time retains the previous metrics, and a counter reset (new value below
// the stored one) contributes a zero delta rather than a negative one.
func (r *Registry) UpdatePortCounters(deviceID string, port int, c PortCounters) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return
	}

	prev, hasPrev := dev.counters[port]
	if hasPrev {
		elapsed := c.Timestamp.Sub(prev.Timestamp).Seconds()
		if elapsed > 0 {
			byteDelta := counterDelta(c.RxBytes, prev.RxBytes) + counterDelta(c.TxBytes, prev.TxBytes)
			packetDelta := counterDelta(c.RxPackets, prev.RxPackets) + counterDelta(c.TxPackets, prev.TxPackets)
			dropDelta := counterDelta(c.RxDropped, prev.RxDropped) + counterDelta(c.TxDropped, prev.TxDropped)

			bw := float64(byteDelta) * 8 / (elapsed * 1e6)
			if bw < 0 {
				bw = 0
			}

			denom := packetDelta
			if denom < 1 {
				denom = 1
			}
			loss := float64(dropDelta) / float64(denom)
			if loss < 0 {
				loss = 0
			} else if loss > 1 {
				loss = 1
			}

			dev.metrics[port] = PortMetrics{
				BandwidthMbps: bw,
				LossRatio:     loss,
				UpdatedAt:     c.Timestamp,
			}
		}
		// elapsed <= 0: keep the previous metrics untouched
	}

	dev.counters[port] = c
}

// counterDelta treats a reset (now < prev) as zero, never negative
func counterDelta(now, prev uint64) uint64 {
	if now < prev {
		return 0
	}
	return now - prev
}

// PortMetrics returns the latest derived metrics merged over all devices.
// Ports reported by more than one device keep the freshest entry.
func (r *Registry) PortMetrics() map[int]PortMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]PortMetrics)
	for _, dev := range r.devices {
		for port, m := range dev.metrics {
			if cur, ok := out[port]; !ok || m.UpdatedAt.After(cur.UpdatedAt) {
				out[port] = m
			}
		}
	}
	return out
}
