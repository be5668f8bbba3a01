package southbound

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/internal/registry"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"
	"github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/logger"
)

// Server accepts device connections and owns one session per device.
// Devices initiate the connection, identify themselves with a hello, and
// from then on answer stats requests and accept flow installs.
type Server struct {
	cfg      *config.Southbound
	registry *registry.Registry

	listener net.Listener
	sessions map[string]*session
	mu       sync.RWMutex
	wg       sync.WaitGroup
	xid      uint32
}

type session struct {
	deviceID string
	conn     net.Conn
	writeMu  sync.Mutex
	timeout  time.Duration
}

// NewServer creates a southbound server feeding the given registry
func NewServer(cfg *config.Southbound, reg *registry.Registry) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		sessions: make(map[string]*session),
	}
}

// Start begins listening and accepting device connections
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	logger.GetLogger().Infof("Southbound listening on %s", addr)

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listen address, useful when port 0 was requested
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and all device sessions and waits for the
// session goroutines to drain.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("southbound shutdown timed out: %w", ctx.Err())
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				logger.GetLogger().Debugf("Accept loop exiting: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// The first message must be the handshake
	env, err := ReadMessage(reader)
	if err != nil || env.Type != TypeHello || env.Hello == nil {
		logger.GetLogger().Warnf("Rejecting connection from %s: no handshake", conn.RemoteAddr())
		return
	}

	deviceID := env.Hello.DeviceID
	sess := &session{
		deviceID: deviceID,
		conn:     conn,
		timeout:  s.cfg.WriteTimeout,
	}

	s.mu.Lock()
	if old, exists := s.sessions[deviceID]; exists {
		old.conn.Close()
	}
	s.sessions[deviceID] = sess
	s.mu.Unlock()

	s.registry.AddDevice(deviceID)
	logger.GetLogger().Infof("Device connected: %s (%d ports)", deviceID, len(env.Hello.Ports))

	// Install the table-miss rule so unmatched traffic reaches the controller
	miss := &FlowMod{Priority: 0, SendToController: true}
	if err := sess.send(&Envelope{Type: TypeFlowMod, FlowMod: miss}); err != nil {
		logger.GetLogger().Warnf("Failed to install table-miss rule on %s: %v", deviceID, err)
	}

	defer func() {
		s.mu.Lock()
		if s.sessions[deviceID] == sess {
			delete(s.sessions, deviceID)
		}
		s.mu.Unlock()
		s.registry.RemoveDevice(deviceID)
		logger.GetLogger().Infof("Device disconnected: %s", deviceID)
	}()

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		env, err := ReadMessage(reader)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				logger.GetLogger().Debugf("Device %s read error: %v", deviceID, err)
			}
			return
		}

		switch env.Type {
		case TypeStatsReply:
			if env.StatsReply == nil {
				logger.GetLogger().Warnf("Device %s sent empty stats reply", deviceID)
				continue
			}
			now := time.Now()
			for _, p := range env.StatsReply.Ports {
				s.registry.UpdatePortCounters(deviceID, p.Port, registry.PortCounters{
					RxBytes:   p.RxBytes,
					TxBytes:   p.TxBytes,
					RxPackets: p.RxPackets,
					TxPackets: p.TxPackets,
					RxDropped: p.RxDropped,
					TxDropped: p.TxDropped,
					Timestamp: now,
				})
			}
		default:
			logger.GetLogger().Debugf("Device %s sent unexpected %s message", deviceID, env.Type)
		}
	}
}

// RequestStats asks one device for a counter snapshot of all its ports
func (s *Server) RequestStats(deviceID string) error {
	sess, err := s.session(deviceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.xid++
	xid := s.xid
	s.mu.Unlock()
	return sess.send(&Envelope{Type: TypeStatsRequest, StatsRequest: &StatsRequest{XID: xid}})
}

// InstallFlow sends one flow rule to a device
func (s *Server) InstallFlow(deviceID string, fm FlowMod) error {
	sess, err := s.session(deviceID)
	if err != nil {
		return err
	}
	return sess.send(&Envelope{Type: TypeFlowMod, FlowMod: &fm})
}

func (s *Server) session(deviceID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s not connected", deviceID)
	}
	return sess, nil
}

func (sess *session) send(env *Envelope) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if sess.timeout > 0 {
		sess.conn.SetWriteDeadline(time.Now().Add(sess.timeout))
	}
	return WriteMessage(sess.conn, env)
}
