package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/muurk/dbscout/internal/logging"
)

const (
	// DefaultPort is the TCP port of a default instance
	DefaultPort = 1433

	// DefaultLoginTimeout bounds one login plus version query
	DefaultLoginTimeout = 5 * time.Second

	// AppName is reported to the server in the login packet
	AppName = "dbscout"

	versionQuery = "SELECT @@VERSION"
)

// Credentials for SQL authentication. An empty User requests integrated
// authentication where the platform supports it.
type Credentials struct {
	User     string
	Password string
}

// Client performs lightweight login handshakes.
type Client struct {
	LoginTimeout time.Duration
	Credentials  Credentials
}

// NewClient creates a handshake client
func NewClient(creds Credentials, loginTimeout time.Duration) *Client {
	if loginTimeout <= 0 {
		loginTimeout = DefaultLoginTimeout
	}
	return &Client{
		LoginTimeout: loginTimeout,
		Credentials:  creds,
	}
}

// Handshake logs into target and reads the server version. Failures are
// returned as *ProbeError.
func (c *Client) Handshake(ctx context.Context, target Target) (string, error) {
	timeout := c.LoginTimeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	connector, err := mssql.NewConnector(BuildDSN(target, c.Credentials, timeout))
	if err != nil {
		return "", NewProbeError(target, fmt.Errorf("build connector: %w", err))
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var raw string
	if err := db.QueryRowContext(ctx, versionQuery).Scan(&raw); err != nil {
		pe := NewProbeError(target, err)
		logging.Debug("Handshake failed",
			zap.String("target", pe.Target),
			zap.String("class", pe.Class.String()),
			zap.Int32("number", pe.Number),
			zap.Error(err),
		)
		return "", pe
	}

	version := FirstLine(raw)
	logging.Debug("Handshake succeeded",
		zap.String("target", target.Descriptor()),
		zap.String("version", version),
	)
	return version, nil
}

// BuildDSN builds a sqlserver:// URL for target. A known port always wins
// over the instance name so the driver never needs the browser service.
func BuildDSN(target Target, creds Credentials, timeout time.Duration) string {
	u := &url.URL{
		Scheme: "sqlserver",
	}
	if creds.User != "" {
		u.User = url.UserPassword(creds.User, creds.Password)
	}

	switch {
	case target.Port > 0:
		u.Host = net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	case target.Named():
		u.Host = target.Host
		u.Path = target.Instance
	default:
		u.Host = net.JoinHostPort(target.Host, strconv.Itoa(DefaultPort))
	}

	secs := strconv.Itoa(int(math.Ceil(timeout.Seconds())))
	q := url.Values{}
	q.Set("database", "master")
	q.Set("app name", AppName)
	q.Set("connection timeout", secs)
	q.Set("dial timeout", secs)
	q.Set("TrustServerCertificate", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
