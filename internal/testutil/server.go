package testutil

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// FlightServer is an in-process Flight SQL server backed by an in-memory
// DuckDB database, for adapter tests. Each gRPC peer (one client connection)
// is pinned to its own database/sql connection, so session state like USE and
// SQL transactions behaves the way a real server session does.
type FlightServer struct {
	flightsql.BaseServer

	db    *sql.DB
	alloc memory.Allocator

	username string
	password string

	mu       sync.Mutex
	sessions map[string]*sql.Conn
	queries  map[string]string

	srv  flight.Server
	addr string
}

// noHandshakeServer reports the Handshake RPC as unimplemented so clients
// fall back to sending per-call basic authorization headers, which is what
// checkAuth validates. The embedded BaseFlightServer otherwise answers the
// handshake with an empty success and no authorization header, which basic
// token clients reject.
type noHandshakeServer struct {
	flight.FlightServer
}

func (noHandshakeServer) Handshake(flight.FlightService_HandshakeServer) error {
	return status.Error(codes.Unimplemented, "handshake not supported")
}

// StartFlightServer opens an in-memory DuckDB database and serves it over
// Flight SQL on a random loopback port. Callers must Close the server.
func StartFlightServer(username, password string) (*FlightServer, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &FlightServer{
		db:       db,
		alloc:    memory.DefaultAllocator,
		username: username,
		password: password,
		sessions: make(map[string]*sql.Conn),
		queries:  make(map[string]string),
	}
	if err := s.RegisterSqlInfo(flightsql.SqlInfoFlightSqlServerName, "gizmosql-test"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.RegisterSqlInfo(flightsql.SqlInfoFlightSqlServerVersion, "duckdb v1.1.3"); err != nil {
		_ = db.Close()
		return nil, err
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.addr = lis.Addr().String()

	s.srv = flight.NewServerWithMiddleware(nil)
	s.srv.RegisterFlightService(&noHandshakeServer{flightsql.NewFlightServer(s)})
	s.srv.InitListener(lis)
	go func() { _ = s.srv.Serve() }()

	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *FlightServer) Addr() string { return s.addr }

// Close shuts the server down and releases all sessions.
func (s *FlightServer) Close() {
	if s.srv != nil {
		s.srv.Shutdown()
	}

	s.mu.Lock()
	for key, c := range s.sessions {
		_ = c.Close()
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	_ = s.db.Close()
}

// session returns the pinned database connection for the calling peer,
// creating one on first use. The peer address identifies the client's TCP
// connection, so every Flight SQL client gets exactly one session.
func (s *FlightServer) session(ctx context.Context) (*sql.Conn, error) {
	if err := s.checkAuth(ctx); err != nil {
		return nil, err
	}

	p, ok := peer.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "no peer in context")
	}
	key := p.Addr.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sessions[key]; ok {
		return c, nil
	}
	c, err := s.db.Conn(context.Background())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "open session: %v", err)
	}
	s.sessions[key] = c
	return c, nil
}

func (s *FlightServer) checkAuth(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	headers := md.Get("authorization")
	if len(headers) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}

	parts := strings.SplitN(headers[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return status.Error(codes.Unauthenticated, "expected Basic authorization")
	}
	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return status.Error(codes.Unauthenticated, "invalid basic auth encoding")
	}
	if string(raw) != s.username+":"+s.password {
		return status.Error(codes.Unauthenticated, "invalid username or password")
	}
	return nil
}

func (s *FlightServer) GetFlightInfoStatement(ctx context.Context, cmd flightsql.StatementQuery,
	desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	query := cmd.GetQuery()
	schema, err := s.querySchema(ctx, c, query)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to prepare query: %v", err)
	}

	handleID := uuid.NewString()
	s.mu.Lock()
	s.queries[handleID] = query
	s.mu.Unlock()

	ticketBytes, err := flightsql.CreateStatementQueryTicket([]byte(handleID))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create ticket: %v", err)
	}

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(schema, s.alloc),
		FlightDescriptor: desc,
		Endpoint: []*flight.FlightEndpoint{{
			Ticket: &flight.Ticket{Ticket: ticketBytes},
		}},
		TotalRecords: -1,
		TotalBytes:   -1,
	}, nil
}

func (s *FlightServer) DoGetStatement(ctx context.Context, ticket flightsql.StatementQueryTicket) (*arrow.Schema,
	<-chan flight.StreamChunk, error) {
	c, err := s.session(ctx)
	if err != nil {
		return nil, nil, err
	}

	handleID := string(ticket.GetStatementHandle())
	s.mu.Lock()
	query, ok := s.queries[handleID]
	delete(s.queries, handleID)
	s.mu.Unlock()
	if !ok {
		return nil, nil, status.Error(codes.NotFound, "query handle not found")
	}

	schema, err := s.querySchema(ctx, c, query)
	if err != nil {
		return nil, nil, status.Errorf(codes.InvalidArgument, "failed to prepare query: %v", err)
	}

	ch := make(chan flight.StreamChunk, 4)
	go func() {
		defer close(ch)

		rows, err := c.QueryContext(ctx, query)
		if err != nil {
			ch <- flight.StreamChunk{Err: err}
			return
		}
		defer func() { _ = rows.Close() }()

		for {
			record, err := s.rowsToRecord(rows, schema, 1024)
			if err != nil {
				ch <- flight.StreamChunk{Err: err}
				return
			}
			if record == nil {
				return
			}
			ch <- flight.StreamChunk{Data: record}
		}
	}()

	return schema, ch, nil
}

func (s *FlightServer) DoPutCommandStatementUpdate(ctx context.Context, cmd flightsql.StatementUpdate) (int64, error) {
	c, err := s.session(ctx)
	if err != nil {
		return 0, err
	}

	result, err := c.ExecContext(ctx, cmd.GetQuery())
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "failed to execute update: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (s *FlightServer) DoPutCommandStatementIngest(ctx context.Context, cmd flightsql.StatementIngest,
	rdr flight.MessageReader) (int64, error) {
	c, err := s.session(ctx)
	if err != nil {
		return 0, err
	}

	table := quoteIdent(cmd.GetTable())
	if catalog := cmd.GetCatalog(); catalog != "" {
		table = quoteIdent(catalog) + "." + table
	}

	var total int64
	for rdr.Next() {
		record := rdr.Record()
		n, err := s.insertRecord(ctx, c, table, record)
		if err != nil {
			return total, status.Errorf(codes.InvalidArgument, "ingest into %s: %v", table, err)
		}
		total += n
	}
	if err := rdr.Err(); err != nil {
		return total, status.Errorf(codes.Internal, "read ingest stream: %v", err)
	}
	return total, nil
}

// insertRecord writes one Arrow record into a table through row-wise
// parameterized inserts. Slow and simple, which is fine for a test double.
func (s *FlightServer) insertRecord(ctx context.Context, c *sql.Conn, table string, record arrow.Record) (int64, error) {
	schema := record.Schema()
	numCols := int(record.NumCols())

	cols := make([]string, numCols)
	placeholders := make([]string, numCols)
	for i := 0; i < numCols; i++ {
		cols[i] = quoteIdent(schema.Field(i).Name)
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var total int64
	for row := 0; row < int(record.NumRows()); row++ {
		args := make([]any, numCols)
		for col := 0; col < numCols; col++ {
			v, err := cellValue(record.Column(col), row)
			if err != nil {
				return total, err
			}
			args[col] = v
		}
		if _, err := c.ExecContext(ctx, stmt, args...); err != nil {
			return total, err
		}
		total++
	}
	return total, nil
}

func cellValue(col arrow.Array, row int) (any, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(row), nil
	case *array.Float64:
		return a.Value(row), nil
	case *array.String:
		return a.Value(row), nil
	case *array.Boolean:
		return a.Value(row), nil
	case *array.Timestamp:
		return a.Value(row).ToTime(a.DataType().(*arrow.TimestampType).Unit).UTC(), nil
	case *array.Binary:
		return a.Value(row), nil
	case *array.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ingest column type %s", col.DataType())
	}
}

// querySchema infers a result schema by preparing the query with no rows.
func (s *FlightServer) querySchema(ctx context.Context, c *sql.Conn, query string) (*arrow.Schema, error) {
	rows, err := c.QueryContext(ctx, query+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(colTypes))
	for i, ct := range colTypes {
		fields[i] = arrow.Field{Name: ct.Name(), Type: duckDBTypeToArrow(ct.DatabaseTypeName()), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func (s *FlightServer) rowsToRecord(rows *sql.Rows, schema *arrow.Schema, batchSize int) (arrow.Record, error) {
	builder := array.NewRecordBuilder(s.alloc, schema)
	defer builder.Release()

	numFields := schema.NumFields()
	count := 0
	for count < batchSize && rows.Next() {
		values := make([]any, numFields)
		ptrs := make([]any, numFields)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			appendValue(builder.Field(i), v)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return builder.NewRecord(), nil
}

func duckDBTypeToArrow(dbType string) arrow.DataType {
	dbType = strings.ToUpper(dbType)
	switch {
	case strings.Contains(dbType, "BIGINT"), strings.Contains(dbType, "HUGEINT"),
		strings.Contains(dbType, "INT"):
		return arrow.PrimitiveTypes.Int64
	case strings.Contains(dbType, "DOUBLE"), strings.Contains(dbType, "FLOAT"),
		strings.Contains(dbType, "REAL"), strings.Contains(dbType, "DECIMAL"):
		return arrow.PrimitiveTypes.Float64
	case strings.Contains(dbType, "BOOL"):
		return arrow.FixedWidthTypes.Boolean
	case strings.Contains(dbType, "TIMESTAMP"):
		return arrow.FixedWidthTypes.Timestamp_us
	case strings.Contains(dbType, "BLOB"):
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(builder array.Builder, val any) {
	if val == nil {
		builder.AppendNull()
		return
	}

	switch b := builder.(type) {
	case *array.Int64Builder:
		switch v := val.(type) {
		case int64:
			b.Append(v)
		case int32:
			b.Append(int64(v))
		case int:
			b.Append(int64(v))
		default:
			b.AppendNull()
		}
	case *array.Float64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			b.AppendNull()
		}
	case *array.BooleanBuilder:
		if v, ok := val.(bool); ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}
	case *array.TimestampBuilder:
		if v, ok := val.(time.Time); ok {
			b.Append(arrow.Timestamp(v.UTC().UnixMicro()))
		} else {
			b.AppendNull()
		}
	case *array.BinaryBuilder:
		switch v := val.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			b.AppendNull()
		}
	case *array.StringBuilder:
		switch v := val.(type) {
		case string:
			b.Append(v)
		case []byte:
			b.Append(string(v))
		default:
			b.Append(fmt.Sprintf("%v", v))
		}
	default:
		builder.AppendNull()
	}
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
