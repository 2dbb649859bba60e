package wpactrl

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSupplicant answers commands on a unixgram socket. An empty answer
// leaves the command unanswered.
type fakeSupplicant struct {
	conn     *net.UnixConn
	received chan string
	answer   func(cmd string) []string

	client *net.UnixAddr
	sync.Mutex
}

func newFakeSupplicant(t *testing.T, answer func(cmd string) []string) (*fakeSupplicant, string) {

	path := filepath.Join(t.TempDir(), "wlan0")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)

	f := &fakeSupplicant{
		conn:     conn,
		received: make(chan string, 16),
		answer:   answer,
	}
	t.Cleanup(func() { conn.Close() }) // nolint: errcheck

	go f.serve()

	return f, path
}

func (f *fakeSupplicant) serve() {

	buf := make([]byte, maxMessageSize)
	for {
		n, addr, err := f.conn.ReadFromUnix(buf)
		if err != nil {
			return
		}

		cmd := string(buf[:n])
		f.Lock()
		f.client = addr
		f.Unlock()
		f.received <- cmd

		for _, msg := range f.answer(cmd) {
			f.conn.WriteToUnix([]byte(msg), addr) // nolint: errcheck
		}
	}
}

func (f *fakeSupplicant) event(t *testing.T, msg string) {
	f.Lock()
	addr := f.client
	f.Unlock()
	_, err := f.conn.WriteToUnix([]byte(msg), addr)
	require.NoError(t, err)
}

func okToAll(cmd string) []string {
	switch cmd {
	case "PING":
		return []string{"PONG\n"}
	case "DSCP_RESP solicited policy_id=1 status=1":
		return []string{"FAIL\n"}
	case "DSCP_RESP solicited policy_id=2 status=0":
		return []string{"<3>CTRL-EVENT-DSCP-POLICY request_start", "OK\n"}
	case "QUERY":
		return nil
	default:
		return []string{"OK\n"}
	}
}

func open(t *testing.T, path string, opts ...Option) *Client {

	opts = append([]Option{OptionLocalDir(t.TempDir())}, opts...)
	c, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) // nolint: errcheck

	return c
}

func TestOpen(t *testing.T) {

	t.Run("attaches to the event stream", func(t *testing.T) {
		f, path := newFakeSupplicant(t, okToAll)
		c := open(t, path)

		assert.NotNil(t, c)
		assert.Equal(t, "ATTACH", <-f.received)
	})

	t.Run("fails when the supplicant refuses to attach", func(t *testing.T) {
		_, path := newFakeSupplicant(t, func(string) []string { return []string{"FAIL\n"} })
		dir := t.TempDir()

		c, err := Open(context.Background(), path, OptionLocalDir(dir))
		require.Error(t, err)
		assert.Nil(t, c)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("fails without a supplicant", func(t *testing.T) {
		c, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"), OptionLocalDir(t.TempDir()))
		require.Error(t, err)
		assert.Nil(t, c)
	})
}

func TestRequests(t *testing.T) {

	f, path := newFakeSupplicant(t, okToAll)
	c := open(t, path, OptionTimeout(200*time.Millisecond))
	<-f.received

	t.Run("returns the reply", func(t *testing.T) {
		reply, err := c.Request(context.Background(), "PING")
		require.NoError(t, err)
		assert.Equal(t, "PONG", reply)
	})

	t.Run("accepts OK", func(t *testing.T) {
		require.NoError(t, c.Send(context.Background(), "DSCP_RESP solicited"))
	})

	t.Run("reports FAIL", func(t *testing.T) {
		err := c.Send(context.Background(), "DSCP_RESP solicited policy_id=1 status=1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DSCP_RESP")
	})

	t.Run("times out without reply", func(t *testing.T) {
		err := c.Send(context.Background(), "QUERY")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("rejects unexpected replies", func(t *testing.T) {
		require.Error(t, c.Send(context.Background(), "PING"))
	})

	t.Run("queues events received while waiting for a reply", func(t *testing.T) {
		require.NoError(t, c.Send(context.Background(), "DSCP_RESP solicited policy_id=2 status=0"))

		msg, err := c.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "<3>CTRL-EVENT-DSCP-POLICY request_start", msg)
	})
}

func TestReceive(t *testing.T) {

	f, path := newFakeSupplicant(t, okToAll)
	c := open(t, path)
	<-f.received

	t.Run("returns events in order", func(t *testing.T) {
		f.event(t, "<3>CTRL-EVENT-DSCP-POLICY request_start clear_all\n")
		f.event(t, "<3>CTRL-EVENT-DSCP-POLICY request_end")

		first, err := c.Receive(context.Background())
		require.NoError(t, err)
		second, err := c.Receive(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "<3>CTRL-EVENT-DSCP-POLICY request_start clear_all", first)
		assert.Equal(t, "<3>CTRL-EVENT-DSCP-POLICY request_end", second)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := c.Receive(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("returns EOF once closed", func(t *testing.T) {
		require.NoError(t, c.Close())
		assert.Equal(t, "DETACH", <-f.received)

		_, err := c.Receive(context.Background())
		assert.Equal(t, io.EOF, err)

		_, err = c.Request(context.Background(), "PING")
		assert.Error(t, err)

		_, err = os.Stat(c.localPath)
		assert.True(t, os.IsNotExist(err))
	})
}
