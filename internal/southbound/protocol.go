package southbound

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Message types exchanged between controller and devices. The encoding is
// newline-delimited JSON; only the information content of the operations
// matters, not any vendor wire format.
const (
	TypeHello        = "hello"
	TypeStatsRequest = "stats_request"
	TypeStatsReply   = "stats_reply"
	TypeFlowMod      = "flow_mod"
)

// Envelope wraps every message on the wire
type Envelope struct {
	Type         string        `json:"type"`
	Hello        *Hello        `json:"hello,omitempty"`
	StatsRequest *StatsRequest `json:"stats_request,omitempty"`
	StatsReply   *StatsReply   `json:"stats_reply,omitempty"`
	FlowMod      *FlowMod      `json:"flow_mod,omitempty"`
}

// Hello is the device-connect handshake
type Hello struct {
	DeviceID string `json:"device_id"`
	Ports    []int  `json:"ports"`
}

// StatsRequest asks a device for counters on all its ports
type StatsRequest struct {
	XID uint32 `json:"xid"`
}

// StatsReply carries one counter snapshot per port
type StatsReply struct {
	XID   uint32      `json:"xid"`
	Ports []PortStats `json:"ports"`
}

// PortStats is one port's raw counters
type PortStats struct {
	Port      int    `json:"port"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}

// FlowMod installs a rule on the device. A rule with SendToController set
// is the table-miss default; otherwise the rule binds traffic entering
// InPort to QueueID for HardTimeout, superseding any lower-or-equal
// priority rule for the same match.
type FlowMod struct {
	InPort           int           `json:"in_port,omitempty"`
	QueueID          int           `json:"queue_id"`
	Priority         int           `json:"priority"`
	HardTimeout      time.Duration `json:"hard_timeout"`
	SendToController bool          `json:"send_to_controller,omitempty"`
}

// WriteMessage encodes one envelope followed by a newline
func WriteMessage(w io.Writer, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", env.Type, err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", env.Type, err)
	}
	return nil
}

// ReadMessage decodes the next envelope from the stream
func ReadMessage(r *bufio.Reader) (*Envelope, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("malformed message: missing type")
	}
	return &env, nil
}
