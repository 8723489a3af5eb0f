// Package readiness implements a UDS-based readiness notifier an
// external supervisor (systemd, a container orchestrator's readiness
// probe) can block on: it connects, and gets a single byte back the
// moment a profiling session actually starts sampling.
package readiness

import (
	"context"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ReadyMsg is the single byte written to a connecting peer once Notify
// has been called.
const ReadyMsg = 0x01

// Server is a readiness notifier: any peer connecting to socketPath
// receives ReadyMsg as soon as (and every time, even if connecting
// late) Notify has fired.
type Server struct {
	ln         net.Listener
	readyCh    chan struct{}
	socketPath string
	logger     zerolog.Logger
}

// New returns a Server bound to socketPath, not yet listening.
func New(socketPath string, logger zerolog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     logger.With().Str("component", "readiness").Logger(),
	}
}

// Listen starts accepting connections on the Unix domain socket.
func (s *Server) Listen(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "readiness: listen on unix socket")
	}
	s.ln = ln

	go s.acceptConnections(ctx)
	return nil
}

// Notify marks the session ready; every connected or future peer gets
// ReadyMsg. Safe to call at most once — a second call panics, the
// same contract as closing an already-closed channel.
func (s *Server) Notify() {
	s.logger.Debug().Msg("marking readiness")
	close(s.readyCh)
}

// Shutdown closes the listener and removes the socket file.
func (s *Server) Shutdown() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug().Err(err).Msg("error removing socket")
			return err
		}
	}
	return nil
}

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("stopping accepting connections")
			return
		default:
			conn, err := s.ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn().Err(err).Msg("accept error")
				continue
			}
			go s.processConnection(ctx, conn)
		}
	}
}

func (s *Server) processConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if !s.connectionAlive(conn) {
			return
		}
		if err := s.safeWrite(conn, []byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write")
			}
		}
	case <-ctx.Done():
		return
	}
}

func (s *Server) connectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now())
	if _, err := conn.Read([]byte{}); err == io.EOF {
		conn.Close()
		return false
	}
	conn.SetReadDeadline(time.Time{})
	return true
}

func (s *Server) safeWrite(conn net.Conn, data []byte) error {
	_, err := conn.Write(data)
	if err != nil {
		switch {
		case errors.Is(err, syscall.EPIPE):
			conn.Close()
			return errors.Wrap(err, "peer closed the connection")
		case errors.Is(err, syscall.ECONNRESET):
			conn.Close()
			return errors.Wrap(err, "peer reset the connection")
		default:
			return errors.Wrap(err, "failed to write")
		}
	}
	return nil
}
