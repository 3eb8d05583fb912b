// Package catalog records the node tree of a container in SQLite so it can be
// searched with plain SQL.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/bundledggpk"
	"github.com/jchantrell/ggpktool/internal/ggpk"
)

const DefaultBatchSize = 1000

// Node kinds stored in nodes.kind.
const (
	KindDirectory       = "directory"
	KindFile            = "file"
	KindBundleDirectory = "bundle_directory"
	KindBundleFile      = "bundle_file"
)

var schema = []string{
	`DROP TABLE IF EXISTS nodes`,
	`DROP TABLE IF EXISTS bundles`,
	`CREATE TABLE bundles (
		id INTEGER PRIMARY KEY,
		path TEXT NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		record_offset INTEGER NOT NULL
	)`,
	`CREATE TABLE nodes (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		name_hash INTEGER NOT NULL,
		offset INTEGER,
		size INTEGER,
		bundle_id INTEGER REFERENCES bundles(id)
	)`,
	`CREATE INDEX nodes_kind ON nodes(kind)`,
	// names may differ only in case, so case-insensitive lookups go through an index
	`CREATE INDEX nodes_path_nocase ON nodes(path COLLATE NOCASE)`,
}

// ProgressCallback reports how many nodes have been written.
type ProgressCallback func(done, total int)

// Node is one row of the nodes table.
type Node struct {
	Path     string
	Name     string
	Kind     string
	NameHash uint32
	Offset   sql.NullInt64
	Size     sql.NullInt64
	BundleID sql.NullInt64
}

// Builder fills a catalog from a container.
type Builder struct {
	db        *Database
	batchSize int
	progress  ProgressCallback
}

func NewBuilder(db *Database, batchSize int, progress ProgressCallback) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{db: db, batchSize: batchSize, progress: progress}
}

// Build replaces the catalog contents with the tree of c.
func (b *Builder) Build(ctx context.Context, c *bundledggpk.Container) error {
	for _, stmt := range schema {
		if _, err := b.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating catalog schema: %w", err)
		}
	}

	if c.Index != nil {
		if err := b.insertBundles(ctx, c); err != nil {
			return err
		}
	}

	nodes, err := Collect(c.Tree())
	if err != nil {
		return err
	}

	for i := 0; i < len(nodes); i += b.batchSize {
		end := min(i+b.batchSize, len(nodes))
		if err := b.insertBatch(ctx, nodes[i:end]); err != nil {
			return fmt.Errorf("inserting nodes %d-%d: %w", i, end-1, err)
		}
		if b.progress != nil {
			b.progress(end, len(nodes))
		}
	}

	slog.Debug("Catalog built", "path", b.db.Path(), "nodes", len(nodes))
	return nil
}

func (b *Builder) insertBundles(ctx context.Context, c *bundledggpk.Container) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bundles (id, path, uncompressed_size, record_offset) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing bundle insert: %w", err)
	}
	defer stmt.Close()

	for _, br := range c.Index.Bundles {
		rec, err := c.RecordOfBundle(br)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, br.Index, br.Path, br.UncompressedSize, rec.Record.Offset); err != nil {
			return fmt.Errorf("inserting bundle %s: %w", br.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (b *Builder) insertBatch(ctx context.Context, batch []Node) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (path, name, kind, name_hash, offset, size, bundle_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range batch {
		if _, err := stmt.ExecContext(ctx, n.Path, n.Name, n.Kind, int64(n.NameHash), n.Offset, n.Size, n.BundleID); err != nil {
			return fmt.Errorf("inserting %q: %w", n.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Collect turns every node below the root into a row, in walk order.
func Collect(t *ggpk.Tree) ([]Node, error) {
	var nodes []Node
	root := t.Root()
	err := t.Walk(root, func(n ggpk.Node) error {
		if n == root {
			return nil
		}
		row := Node{Path: t.Path(n), Name: n.Name(), NameHash: n.NameHash()}
		switch x := n.(type) {
		case *ggpk.DirectoryNode:
			row.Kind = KindDirectory
			row.Offset = valid(x.Record.Offset)
		case *ggpk.FileNode:
			row.Kind = KindFile
			row.Offset = valid(x.Record.Offset)
			row.Size = valid(x.Record.DataLength)
		case *ggpk.BundleDirectoryNode:
			row.Kind = KindBundleDirectory
			if x.Offset != ggpk.UnsetOffset {
				row.Offset = valid(int64(x.Offset))
				row.Size = valid(int64(x.Size))
			}
		case *ggpk.BundleFileNode:
			row.Kind = KindBundleFile
			row.Offset = valid(int64(x.Record.Offset))
			row.Size = valid(int64(x.Record.Size))
			row.BundleID = bundleID(x.Record.Bundle)
		default:
			return fmt.Errorf("cataloguing %T", n)
		}
		nodes = append(nodes, row)
		return nil
	})
	return nodes, err
}

func valid(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func bundleID(b *bundle.Record) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return valid(int64(b.Index))
}
