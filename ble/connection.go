package ble

import (
  "context"
  "errors"
  "net"
  "sync"

  "github.com/go-ble/ble"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
)

var (
  successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_ble_successful_connections_total",
    Help: "Connections established with a scale.",
  })
  failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_ble_failed_connections_total",
    Help: "Connection attempts that failed.",
  })
  connectionsFromPoolCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_ble_reused_connections_total",
    Help: "Connections taken from the connection pool.",
  })
  disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_ble_disconnections_total",
    Help: "Connections closed by either side.",
  })
)

// HCI status codes reported for failed connection attempts.
const (
  HCIStatusUnknown = 0x00
  HCIStatusConnectionTimeout = 0x08
)

// HCIStatus maps a Connect error to the HCI status the controller would report.
func HCIStatus(err error) int {
  if errors.Is(err, context.DeadlineExceeded) {
    return HCIStatusConnectionTimeout
  }

  return HCIStatusUnknown
}

type connectionPool struct {
  mu sync.Mutex

  connections map[string]Client
}

func initConnectionPool() *connectionPool {
  return &connectionPool{
    connections: make(map[string]ble.Client),
  }
}

func dial(ctx context.Context, addr net.HardwareAddr) (Client, error) {
  c, err := ble.Dial(ctx, ble.NewAddr(addr.String()))

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, err
  }

  successfulConnectionsCounter.Inc()

  return c, nil
}

// Connect dials the scale at addr, or returns the pooled link to it if there is one.
func (h *Handle) Connect(ctx context.Context, addr net.HardwareAddr) (Client, error) {
  if h.connPool == nil {
    return dial(ctx, addr)
  }

  addrStr := addr.String()

  h.connPool.mu.Lock()
  defer h.connPool.mu.Unlock()

  if conn := h.connPool.connections[addrStr]; conn != nil {
    connectionsFromPoolCounter.Inc()
    log.Trace().Stringer("Addr", addr).Msg("ble: reusing connection from connection pool")
    return conn, nil
  }

  conn, err := dial(ctx, addr)
  if err != nil {
    return nil, err
  }

  h.connPool.connections[addrStr] = conn
  log.Debug().Stringer("Addr", addr).Msg("ble: opened new connection to scale")

  go func() {
    <-conn.Disconnected()

    disconnectsCounter.Inc()
    log.Debug().Stringer("Addr", addr).Msg("ble: connection with scale closed, cleaning up")

    h.connPool.mu.Lock()
    defer h.connPool.mu.Unlock()

    if h.connPool.connections[addrStr] == conn {
      delete(h.connPool.connections, addrStr)
    }
  }()

  return conn, nil
}

// Open connects to addr and returns a GATT transport reporting to done. Pooled links are
// kept up when the transport is closed.
func (h *Handle) Open(ctx context.Context, addr net.HardwareAddr, done Completions) (*Transport, error) {
  c, err := h.Connect(ctx, addr)
  if err != nil {
    return nil, err
  }

  t, err := NewTransport(c, done, TransportOptions{KeepAlive: h.connPool != nil})
  if err != nil {
    if cancelErr := c.CancelConnection(); cancelErr != nil {
      log.Debug().Err(cancelErr).Stringer("Addr", addr).Msg("ble: failed to drop connection")
    }

    return nil, err
  }

  return t, nil
}

// DisconnectAll clears the connection pool, if any, and closes every pooled connection.
func (h *Handle) DisconnectAll() {
  if h.connPool == nil {
    return
  }

  h.connPool.mu.Lock()
  defer h.connPool.mu.Unlock()

  for addr, conn := range h.connPool.connections {
    if err := conn.CancelConnection(); err != nil {
      log.Debug().Err(err).Str("Addr", addr).Msg("ble: failed to drop connection")
    }
  }

  h.connPool.connections = make(map[string]ble.Client)
}
