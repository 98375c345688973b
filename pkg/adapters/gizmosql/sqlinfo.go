package gizmosql

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
)

// serverVersion fetches the server's vendor version string via the sql-info
// endpoint. GizmoSQL reports its execution engine here ("duckdb v1.x.y ...").
func serverVersion(ctx context.Context, cl *flightsql.Client) (string, error) {
	info, err := cl.GetSqlInfo(ctx, []flightsql.SqlInfo{flightsql.SqlInfoFlightSqlServerVersion})
	if err != nil {
		return "", fmt.Errorf("failed to request server info: %w", err)
	}

	for _, endpoint := range info.Endpoint {
		rdr, err := cl.DoGet(ctx, endpoint.Ticket)
		if err != nil {
			return "", fmt.Errorf("failed to read server info: %w", err)
		}

		for rdr.Next() {
			rec := rdr.Record()
			names := rec.Column(0).(*array.Uint32)
			values := rec.Column(1).(*array.DenseUnion)

			for i := 0; i < int(rec.NumRows()); i++ {
				if flightsql.SqlInfo(names.Value(i)) != flightsql.SqlInfoFlightSqlServerVersion {
					continue
				}
				strs, ok := values.Field(values.ChildID(i)).(*array.String)
				if !ok {
					continue
				}
				version := strs.Value(int(values.ValueOffset(i)))
				rdr.Release()
				return version, nil
			}
		}
		err = rdr.Err()
		rdr.Release()
		if err != nil {
			return "", fmt.Errorf("failed to read server info: %w", err)
		}
	}

	return "", fmt.Errorf("server did not report a vendor version")
}
