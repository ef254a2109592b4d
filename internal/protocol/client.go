package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
)

// DefaultTimeout bounds one request/response exchange
const DefaultTimeout = 500 * time.Millisecond

// Client queries the SQL Server Browser service over UDP.
type Client struct {
	// Timeout bounds send plus receive. Zero means DefaultTimeout.
	Timeout time.Duration
	// Port overrides BrowserPort; used by tests.
	Port int
}

// NewClient creates a browser client with the given exchange timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{Timeout: timeout}
}

// Query sends the list-all-instances request to host and decodes the reply.
func (c *Client) Query(ctx context.Context, host string) (*Response, error) {
	return c.exchange(ctx, host, BrowseRequest())
}

// QueryInstance asks host about a single named instance.
func (c *Client) QueryInstance(ctx context.Context, host, instance string) (*Response, error) {
	return c.exchange(ctx, host, InstanceRequest(instance))
}

func (c *Client) exchange(ctx context.Context, host string, req []byte) (*Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	port := c.Port
	if port == 0 {
		port = BrowserPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("send to %s: %w", addr, err)
	}

	buf := make([]byte, MaxResponseSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", addr, err)
	}
	data := buf[:n]
	logging.LogRawBytes("browser response from "+addr, data)

	resp, err := ParseResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	if resp.LengthMismatch() {
		logging.Debug("Browser response length mismatch",
			zap.String("address", addr),
			zap.Uint16("declared", resp.DeclaredLength),
			zap.Int("actual", len(resp.Payload)),
		)
	}
	return resp, nil
}
