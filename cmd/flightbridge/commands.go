package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/flightbridge/flightbridge/pkg/adapter"
)

func queryCmd(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	setupFlags(fs)
	format := fs.String("format", "table", "Output format: table or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flightbridge query [options] <sql>")
	}

	ctx, cancel, a, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = a.Close() }()

	stream, err := a.Query(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	return renderStream(stream, *format)
}

func execCmd(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	setupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flightbridge exec [options] <sql>")
	}

	ctx, cancel, a, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = a.Close() }()

	n, err := a.Exec(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("OK (%d rows affected)\n", n)
	return nil
}

func ingestCmd(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	setupFlags(fs)
	tableName := fs.String("table", "", "Target table (required)")
	batchSize := fs.Int("batch-size", 10000, "Rows per ingested batch")
	noTxn := fs.Bool("no-transaction", false, "Ingest outside a transaction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableName == "" || fs.NArg() != 1 {
		return fmt.Errorf("usage: flightbridge ingest -table <name> [options] <file.csv>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	src, err := newCSVSource(f, *batchSize)
	if err != nil {
		return err
	}

	ctx, cancel, a, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = a.Close() }()

	start := time.Now()
	var n int64
	if *noTxn {
		n, err = a.Ingest(ctx, *tableName, src)
	} else {
		err = a.WithTransaction(ctx, func(s adapter.Session) error {
			var ingestErr error
			n, ingestErr = s.Ingest(ctx, *tableName, src)
			return ingestErr
		})
	}
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d rows into %s in %s\n", n, *tableName, time.Since(start).Round(time.Millisecond))
	return nil
}

func catalogCmd(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	setupFlags(fs)
	create := fs.String("create", "", "Create a catalog")
	drop := fs.String("drop", "", "Drop a catalog")
	ifNotExists := fs.Bool("if-not-exists", false, "Do not fail when the created catalog exists")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*create == "") == (*drop == "") {
		return fmt.Errorf("usage: flightbridge catalog (-create <name> | -drop <name>)")
	}

	ctx, cancel, a, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = a.Close() }()

	if *create != "" {
		if err := a.CreateCatalog(ctx, *create, *ifNotExists); err != nil {
			return err
		}
		fmt.Printf("Created catalog %s\n", *create)
		return nil
	}
	if err := a.DropCatalog(ctx, *drop); err != nil {
		return err
	}
	fmt.Printf("Dropped catalog %s\n", *drop)
	return nil
}

func renderStream(stream adapter.BatchStream, format string) error {
	var names []string
	var rows []table.Row
	count := 0
	for stream.Next() {
		b := stream.Batch()
		if names == nil {
			for _, col := range b.Columns() {
				names = append(names, col.Name)
			}
		}
		for i := 0; i < b.NumRows(); i++ {
			row := make(table.Row, b.NumColumns())
			for j := 0; j < b.NumColumns(); j++ {
				row[j] = formatValue(b.Value(i, j))
			}
			rows = append(rows, row)
			count++
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	if format == "json" {
		return renderJSON(names, rows)
	}

	if count == 0 {
		fmt.Println("(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(names))
	for i, n := range names {
		header[i] = n
	}
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
	fmt.Printf("(%d rows)\n", count)
	return nil
}

func renderJSON(names []string, rows []table.Row) error {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(names))
		for j, name := range names {
			m[name] = row[j]
		}
		out[i] = m
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("%x", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
