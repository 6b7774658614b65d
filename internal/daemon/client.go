package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/leonardcser/kvnode/internal/storage"
)

// Client implements storage.Storage over a Unix socket.
// Each call dials a fresh connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

var _ storage.Storage = (*Client)(nil)

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 500 * time.Millisecond}
}

// Ping checks that the daemon accepts connections.
func (c *Client) Ping() error {
	return c.withConn(func(net.Conn) error { return nil })
}

func (c *Client) withConn(fn func(conn net.Conn) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Client) do(req Request) (Response, error) {
	var resp Response
	err := c.withConn(func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return err
		}
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			return err
		}
		if !resp.OK {
			return remoteError(resp.Error)
		}
		return nil
	})
	return resp, err
}

func (c *Client) Get(key []byte) ([]byte, error) {
	resp, err := c.do(Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte{}, resp.Value...), nil
}

func (c *Client) Set(key, value []byte) error {
	return c.SetWithExpire(key, value, 0)
}

func (c *Client) SetWithExpire(key, value []byte, ttl time.Duration) error {
	ms := ttl.Milliseconds()
	if ttl > 0 && ms == 0 {
		ms = 1
	}
	_, err := c.do(Request{Op: OpSet, Key: key, Value: value, TTLMillis: ms})
	return err
}

func (c *Client) Delete(key []byte) (bool, error) {
	resp, err := c.do(Request{Op: OpDelete, Key: key})
	return resp.Found, err
}

func (c *Client) Has(key []byte) (bool, error) {
	resp, err := c.do(Request{Op: OpHas, Key: key})
	return resp.Found, err
}

func (c *Client) Keys() ([][]byte, error) {
	resp, err := c.do(Request{Op: OpKeys})
	if err != nil {
		return nil, err
	}
	if resp.Keys == nil {
		return [][]byte{}, nil
	}
	return resp.Keys, nil
}

func (c *Client) Clear() error {
	_, err := c.do(Request{Op: OpClear})
	return err
}

// Close is a no-op; the daemon owns the store.
func (c *Client) Close() error { return nil }

// remoteError maps daemon error text back to the storage sentinels.
func remoteError(msg string) error {
	for _, sentinel := range []error{
		storage.ErrNotFound,
		storage.ErrCapacityExceeded,
		storage.ErrClosed,
	} {
		if msg == sentinel.Error() {
			return sentinel
		}
	}
	return errors.New(msg)
}
