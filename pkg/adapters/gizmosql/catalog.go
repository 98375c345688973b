package gizmosql

import (
	"context"
	"fmt"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// Catalog management. The adapter tracks one active catalog context; every
// connection aligns its server session to it before use. There is no
// optimistic local state: the context mutates only after the server accepted
// the corresponding statement.

// catalogContext returns the adapter's active catalog.
func (a *Adapter) catalogContext() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeCatalog
}

// syncCatalog aligns a connection's server-side catalog context with the
// adapter's active catalog before the connection is used.
func (a *Adapter) syncCatalog(ctx context.Context, c *conn) error {
	want := a.catalogContext()
	if want == "" || c.catalog == want {
		return nil
	}
	sql, err := a.d.Render(core.UseCatalog{Catalog: want}, "")
	if err != nil {
		return err
	}
	if _, err := c.execUpdate(ctx, sql); err != nil {
		return &core.CatalogError{Catalog: want, Op: "use catalog", Err: err}
	}
	c.catalog = want
	return nil
}

// CreateCatalog creates a catalog. Without ifNotExists, creating an existing
// catalog fails with CatalogError.
func (a *Adapter) CreateCatalog(ctx context.Context, name string, ifNotExists bool) error {
	sql, err := a.d.Render(core.CreateCatalog{Catalog: name, IfNotExists: ifNotExists}, "")
	if err != nil {
		return err
	}
	if _, err := a.Exec(ctx, sql); err != nil {
		return &core.CatalogError{Catalog: name, Op: "create catalog", Err: err}
	}
	return nil
}

// DropCatalog drops a catalog. Dropping the active catalog context is
// rejected; switch away first.
func (a *Adapter) DropCatalog(ctx context.Context, name string) error {
	if a.catalogContext() == name {
		return &core.CatalogError{
			Catalog: name,
			Op:      "drop catalog",
			Err:     fmt.Errorf("catalog is the active context; switch to another catalog first"),
		}
	}
	sql, err := a.d.Render(core.DropCatalog{Catalog: name}, "")
	if err != nil {
		return err
	}
	if _, err := a.Exec(ctx, sql); err != nil {
		return &core.CatalogError{Catalog: name, Op: "drop catalog", Err: err}
	}
	return nil
}

// UseCatalog switches the adapter's active catalog context. The local context
// mutates only after the server accepted the switch.
func (a *Adapter) UseCatalog(ctx context.Context, name string) error {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return err
	}
	defer a.pool.put(c)

	sql, err := a.d.Render(core.UseCatalog{Catalog: name}, "")
	if err != nil {
		return err
	}
	if _, err := c.execUpdate(ctx, sql); err != nil {
		return &core.CatalogError{Catalog: name, Op: "use catalog", Err: err}
	}
	c.catalog = name

	a.mu.Lock()
	a.activeCatalog = name
	a.mu.Unlock()
	return nil
}
