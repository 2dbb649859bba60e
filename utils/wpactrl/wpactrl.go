package wpactrl

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds the wait for the reply to a command
	DefaultTimeout = 10 * time.Second

	attachCommand = "ATTACH"
	detachCommand = "DETACH"
	replyOK       = "OK"
	replyFail     = "FAIL"

	// maxMessageSize is the receive buffer of the supplicant control interface.
	maxMessageSize = 4096
)

var (
	// ErrClosed is returned by requests on a closed client.
	ErrClosed = errors.New("control socket closed")

	// ErrTimeout is returned when a command is not answered in time.
	ErrTimeout = errors.New("control socket request timed out")
)

var socketCounter atomic.Uint32

type config struct {
	localDir string
	timeout  time.Duration
}

// Option is provided using functional arguments.
type Option func(*config)

// OptionLocalDir is an option to select where the local socket is bound.
func OptionLocalDir(dir string) Option {
	return func(cfg *config) {
		cfg.localDir = dir
	}
}

// OptionTimeout is an option to bound the wait for command replies.
func OptionTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// Client is an attached connection to the control interface of the
// supplicant. Unsolicited messages are queued for Receive; everything else
// is the reply to the pending command.
type Client struct {
	conn      *net.UnixConn
	localPath string
	timeout   time.Duration

	// pending holds unsolicited messages not yet received.
	pending []string
	notify  chan struct{}
	readErr error
	sync.Mutex

	replies    chan string
	readerDone chan struct{}

	requestLock sync.Mutex
	closing     atomic.Bool
	closeOnce   sync.Once
}

// Open connects to the control socket at ctrlPath and attaches to its
// event stream.
func Open(ctx context.Context, ctrlPath string, opts ...Option) (*Client, error) {

	cfg := &config{
		localDir: os.TempDir(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	localPath := filepath.Join(cfg.localDir, fmt.Sprintf("dscpd_ctrl_%d-%d", os.Getpid(), socketCounter.Add(1)))

	conn, err := net.DialUnix("unixgram",
		&net.UnixAddr{Name: localPath, Net: "unixgram"},
		&net.UnixAddr{Name: ctrlPath, Net: "unixgram"},
	)
	if err != nil {
		os.Remove(localPath) // nolint: errcheck
		return nil, errors.Wrapf(err, "unable to connect to %s", ctrlPath)
	}

	c := &Client{
		conn:       conn,
		localPath:  localPath,
		timeout:    cfg.timeout,
		notify:     make(chan struct{}, 1),
		replies:    make(chan string, 1),
		readerDone: make(chan struct{}),
	}

	go c.read()

	if err := c.Send(ctx, attachCommand); err != nil {
		c.shutdown()
		return nil, errors.Wrapf(err, "unable to attach to %s", ctrlPath)
	}

	zap.L().Debug("Attached to control interface", zap.String("path", ctrlPath))

	return c, nil
}

// Receive returns the next unsolicited message. It returns io.EOF once the
// client is closed and every queued message was received.
func (c *Client) Receive(ctx context.Context) (string, error) {

	for {
		c.Lock()
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending = c.pending[1:]
			c.Unlock()
			return msg, nil
		}
		done := c.readErr != nil
		c.Unlock()

		if done {
			return "", io.EOF
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-c.notify:
		case <-c.readerDone:
		}
	}
}

// Send issues command and expects an OK reply.
func (c *Client) Send(ctx context.Context, command string) error {

	reply, err := c.Request(ctx, command)
	if err != nil {
		return err
	}

	switch {
	case reply == replyOK:
		return nil
	case strings.HasPrefix(reply, replyFail):
		return errors.Errorf("%s: %s", keyword(command), reply)
	default:
		return errors.Errorf("%s: unexpected reply %q", keyword(command), reply)
	}
}

// Request issues command and returns its reply. Only one command is in
// flight at a time.
func (c *Client) Request(ctx context.Context, command string) (string, error) {

	c.requestLock.Lock()
	defer c.requestLock.Unlock()

	// A reply that arrived after its request timed out is stale.
	select {
	case <-c.replies:
	default:
	}

	if _, err := c.conn.Write([]byte(command)); err != nil {
		if c.closing.Load() {
			return "", ErrClosed
		}
		return "", errors.Wrapf(err, "unable to send %s", keyword(command))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case reply := <-c.replies:
		return strings.TrimRight(reply, "\n"), nil
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "%s", keyword(command))
	case <-timer.C:
		return "", errors.Wrapf(ErrTimeout, "%s", keyword(command))
	case <-c.readerDone:
		return "", ErrClosed
	}
}

// Close detaches from the event stream and releases the local socket.
func (c *Client) Close() error {

	if _, err := c.conn.Write([]byte(detachCommand)); err != nil {
		zap.L().Debug("Unable to detach from control interface", zap.Error(err))
	}

	return c.shutdown()
}

func (c *Client) shutdown() error {

	var err error

	c.closeOnce.Do(func() {
		c.closing.Store(true)
		err = c.conn.Close()
		<-c.readerDone
		if rerr := os.Remove(c.localPath); rerr != nil && !os.IsNotExist(rerr) {
			zap.L().Warn("Unable to remove local control socket", zap.String("path", c.localPath), zap.Error(rerr))
		}
	})

	return err
}

func (c *Client) read() {

	defer close(c.readerDone)

	buf := make([]byte, maxMessageSize)

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if !c.closing.Load() {
				zap.L().Warn("Control interface read failed", zap.Error(err))
			}
			c.Lock()
			c.readErr = err
			c.Unlock()
			return
		}

		msg := string(buf[:n])

		if strings.HasPrefix(msg, "<") {
			c.Lock()
			c.pending = append(c.pending, strings.TrimRight(msg, "\n"))
			c.Unlock()

			select {
			case c.notify <- struct{}{}:
			default:
			}
			continue
		}

		select {
		case c.replies <- msg:
		default:
			zap.L().Debug("Dropping unexpected control interface reply", zap.String("reply", msg))
		}
	}
}

func keyword(command string) string {
	if i := strings.IndexByte(command, ' '); i > 0 {
		return command[:i]
	}
	return command
}
