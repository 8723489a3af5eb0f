package readiness

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Read(b []byte) (int, error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Write(b []byte) (int, error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Close() error {
	return m.Called().Error(0)
}

func (m *mockConn) LocalAddr() net.Addr {
	return m.Called().Get(0).(net.Addr)
}

func (m *mockConn) RemoteAddr() net.Addr {
	return m.Called().Get(0).(net.Addr)
}

func (m *mockConn) SetDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return m.Called(t).Error(0)
}

func TestServerListen(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	s := New("/tmp/vernier-readiness.sock", logger)

	os.Remove("/tmp/vernier-readiness.sock")
	err := s.Listen(context.Background())
	assert.NoError(t, err)
	defer s.Shutdown()
}

func TestServerNotifySendsReadyMsg(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	s := New("/tmp/vernier-readiness.sock", logger)

	s.Notify()
	assert.Panics(t, func() {
		s.readyCh <- struct{}{}
	})

	conn := new(mockConn)
	conn.On("Write", []byte{ReadyMsg}).Return(1, nil)
	conn.On("Close").Return(nil)
	conn.On("SetReadDeadline", mock.Anything).Return(nil)
	conn.On("Read", mock.AnythingOfType("[]uint8")).Return(1, nil)

	s.processConnection(context.Background(), conn)
	conn.AssertExpectations(t)
}

func TestServerShutdownRemovesSocket(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	s := New("/tmp/vernier-readiness.sock", logger)

	os.Remove("/tmp/vernier-readiness.sock")
	ln, err := net.Listen("unix", "/tmp/vernier-readiness.sock")
	assert.NoError(t, err)
	s.ln = ln

	go s.acceptConnections(context.Background())

	assert.NoError(t, s.Shutdown())

	_, err = os.Stat(s.socketPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
