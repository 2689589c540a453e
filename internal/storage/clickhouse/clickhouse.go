package clickhouse

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Conn wraps the native driver connection for dependency injection.
type Conn struct {
	driver.Conn
}

// NewConn connects to the database named in the DSN.
func NewConn(ctx context.Context, dsn string) (*Conn, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	return NewConnWithDatabase(ctx, dsn, strings.TrimPrefix(u.Path, "/"))
}

// NewConnWithDatabase connects to a specific database, overriding whatever
// the DSN names. An empty database connects to the server default, which the
// migration runner uses to create the target database.
func NewConnWithDatabase(ctx context.Context, dsn, database string) (*Conn, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	port := u.Port()
	if port == "" {
		port = "9000" // native protocol default
	}
	opts := &clickhouse.Options{
		Protocol: clickhouse.Native,
		Addr:     []string{net.JoinHostPort(u.Hostname(), port)},
	}
	if u.User != nil {
		opts.Auth.Username = u.User.Username()
		opts.Auth.Password, _ = u.User.Password()
	}
	opts.Auth.Database = database

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Conn{Conn: conn}, nil
}
