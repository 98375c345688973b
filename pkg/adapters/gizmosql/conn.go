package gizmosql

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/flightbridge/flightbridge/pkg/core"
	"github.com/flightbridge/flightbridge/pkg/dialect"
)

// authMiddleware attaches the authorization header to every outgoing call.
// It starts with basic credentials and upgrades to the bearer token returned
// by the server's handshake when one is available.
type authMiddleware struct {
	mu    sync.RWMutex
	token string
}

func (m *authMiddleware) StartCall(ctx context.Context) context.Context {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token != "" {
		return metadata.AppendToOutgoingContext(ctx, "authorization", token)
	}
	return ctx
}

func (m *authMiddleware) setToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

type txnState int

const (
	txnIdle txnState = iota
	txnActive
)

func (s txnState) String() string {
	if s == txnActive {
		return "already active"
	}
	return "not active"
}

// conn is one live connection to a GizmoSQL server. A conn is single-writer:
// exactly one in-flight statement or transaction scope at a time. It owns at
// most one active transaction and the catalog context of its server session.
type conn struct {
	cl     *flightsql.Client
	desc   Descriptor
	logger *slog.Logger

	catalog string
	txn     txnState

	// broken marks a connection whose protocol state is unknown, after a
	// canceled call or a failed liveness probe. Broken connections are
	// closed, never returned to the pool.
	broken bool
}

// dial opens a connection, authenticates, verifies the server backend and
// activates the default catalog. No half-open session survives a failure:
// every error path closes the client before returning.
func dial(ctx context.Context, desc Descriptor, d *dialect.Dialect, logger *slog.Logger) (*conn, error) {
	creds := insecure.NewCredentials()
	if desc.UseEncryption {
		creds = credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: desc.DisableCertificateVerification, //nolint:gosec // explicit opt-in for self-signed certs
		})
	}

	auth := &authMiddleware{}
	cl, err := flightsql.NewClient(desc.Addr(), nil, []flight.ClientMiddleware{
		flight.CreateClientMiddleware(auth)}, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, &core.ConnectionError{Endpoint: desc.URI(), Op: "dial", Err: err}
	}

	if err := authenticate(ctx, cl, auth, desc); err != nil {
		_ = cl.Close()
		return nil, err
	}

	if !desc.SkipBackendVerification {
		version, err := serverVersion(ctx, cl)
		if err != nil {
			_ = cl.Close()
			return nil, &core.ConnectionError{Endpoint: desc.URI(), Op: "backend verification", Err: err}
		}
		if !strings.HasPrefix(strings.ToLower(version), "duckdb") {
			_ = cl.Close()
			return nil, &core.ConnectionError{
				Endpoint: desc.URI(),
				Op:       "backend verification",
				Err:      fmt.Errorf("unsupported server backend %q: only the DuckDB backend is supported", version),
			}
		}
	}

	c := &conn{cl: cl, desc: desc, logger: logger}

	if desc.Database != "" {
		useSQL, err := d.Render(core.UseCatalog{Catalog: desc.Database}, "")
		if err != nil {
			_ = cl.Close()
			return nil, err
		}
		if _, err := c.execUpdate(ctx, useSQL); err != nil {
			_ = cl.Close()
			return nil, &core.CatalogError{Catalog: desc.Database, Op: "activate default catalog", Err: err}
		}
		c.catalog = desc.Database
	}

	logger.Debug("opened gizmosql connection", slog.String("endpoint", desc.URI()), slog.String("catalog", c.catalog))
	return c, nil
}

// authenticate performs the basic-token handshake and stores the resulting
// bearer token on the middleware. Servers that do not implement the handshake
// get per-call basic authorization headers instead.
func authenticate(ctx context.Context, cl *flightsql.Client, auth *authMiddleware, desc Descriptor) error {
	authCtx, err := cl.Client.AuthenticateBasicToken(ctx, desc.Username, desc.Password)
	if err == nil {
		if md, ok := metadata.FromOutgoingContext(authCtx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				auth.setToken(vals[0])
			}
		}
		return nil
	}

	if status.Code(err) == codes.Unimplemented {
		basic := base64.StdEncoding.EncodeToString([]byte(desc.Username + ":" + desc.Password))
		auth.setToken("Basic " + basic)
		return nil
	}

	return &core.ConnectionError{Endpoint: desc.URI(), Op: "authentication", Err: err}
}

// execUpdate runs a statement that returns no rows and reports the affected
// row count.
func (c *conn) execUpdate(ctx context.Context, sql string) (int64, error) {
	n, err := c.cl.ExecuteUpdate(ctx, sql)
	if err != nil {
		c.noteFailure(ctx, err)
		return 0, err
	}
	return n, nil
}

// execQuery starts a read and returns the flight info describing its result
// endpoints.
func (c *conn) execQuery(ctx context.Context, sql string) (*flight.FlightInfo, error) {
	info, err := c.cl.Execute(ctx, sql)
	if err != nil {
		c.noteFailure(ctx, err)
		return nil, err
	}
	return info, nil
}

// ping probes the server through the connection. Used by the pool's pre-ping
// checkout validation.
func (c *conn) ping(ctx context.Context) error {
	if _, err := serverVersion(ctx, c.cl); err != nil {
		c.broken = true
		return err
	}
	return nil
}

// noteFailure marks the connection broken when a call was abandoned
// mid-flight. Protocol state is unknown after cancellation, so the connection
// must be evicted rather than reused.
func (c *conn) noteFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		c.broken = true
		return
	}
	switch status.Code(err) {
	case codes.Canceled, codes.DeadlineExceeded, codes.Unavailable:
		c.broken = true
	}
}

func (c *conn) close() error {
	c.logger.Debug("closing gizmosql connection", slog.String("endpoint", c.desc.URI()))
	return c.cl.Close()
}
