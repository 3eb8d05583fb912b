package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/bundle/bundletest"
	"github.com/jchantrell/ggpktool/internal/bundledggpk"
	"github.com/jchantrell/ggpktool/internal/ggpk/ggpktest"
)

func openContainer(t *testing.T) *bundledggpk.Container {
	t.Helper()
	ix := bundletest.Index{
		Bundles: []bundletest.Bundle{{Path: "Data", UncompressedSize: 8}},
		Files: []bundletest.File{
			{Path: "Data/x.dat", Bundle: 0, Offset: 0, Size: 4},
			{Path: "Data/y.dat", Bundle: 0, Offset: 4, Size: 4},
		},
	}

	b := ggpktest.New()
	a := b.File("a.txt", []byte("hello"))
	index := b.File(bundledggpk.IndexFileName, ix.Bytes())
	data := b.File("Data.bundle.bin", bundle.Encode([]byte("xxxxyyyy")))
	dir := b.Dir(bundledggpk.BundlesDirName,
		ggpktest.Child{Name: bundledggpk.IndexFileName, Offset: index},
		ggpktest.Child{Name: "Data.bundle.bin", Offset: data},
	)
	root := b.Dir("",
		ggpktest.Child{Name: "a.txt", Offset: a},
		ggpktest.Child{Name: bundledggpk.BundlesDirName, Offset: dir},
	)

	c, err := bundledggpk.OpenReadOnly(b.WriteFile(t, root, 0), bundledggpk.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func openDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(DefaultOptions(filepath.Join(t.TempDir(), "nested", "catalog.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCollect(t *testing.T) {
	c := openContainer(t)

	nodes, err := Collect(c.Tree())
	require.NoError(t, err)

	var got []string
	for _, n := range nodes {
		got = append(got, n.Kind+" "+n.Path)
	}
	assert.Equal(t, []string{
		"file a.txt",
		"bundle_directory Bundles2",
		"bundle_directory Bundles2/Data",
		"bundle_file Bundles2/Data/x.dat",
		"bundle_file Bundles2/Data/y.dat",
	}, got)

	y := nodes[4]
	assert.Equal(t, sql.NullInt64{Int64: 4, Valid: true}, y.Offset)
	assert.Equal(t, sql.NullInt64{Int64: 4, Valid: true}, y.Size)
	assert.Equal(t, sql.NullInt64{Int64: 0, Valid: true}, y.BundleID)
	assert.False(t, nodes[1].Offset.Valid)
	assert.Equal(t, int64(5), nodes[0].Size.Int64)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	c := openContainer(t)
	db := openDatabase(t)

	var calls [][2]int
	builder := NewBuilder(db, 2, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, builder.Build(ctx, c))
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, calls)

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE kind = ?`, KindBundleFile).Scan(&count))
	assert.Equal(t, 2, count)

	var bundlePath string
	var offset int64
	require.NoError(t, db.QueryRow(ctx,
		`SELECT b.path, n.offset FROM nodes n JOIN bundles b ON b.id = n.bundle_id WHERE n.path = ? COLLATE NOCASE`,
		"bundles2/data/Y.DAT").Scan(&bundlePath, &offset))
	assert.Equal(t, "Data", bundlePath)
	assert.Equal(t, int64(4), offset)

	var recordOffset int64
	require.NoError(t, db.QueryRow(ctx, `SELECT record_offset FROM bundles WHERE id = 0`).Scan(&recordOffset))
	rec, err := c.RecordOfBundle(c.Index.Bundles[0])
	require.NoError(t, err)
	assert.Equal(t, rec.Record.Offset, recordOffset)

	// a rebuild starts from scratch
	require.NoError(t, NewBuilder(db, 0, nil).Build(ctx, c))
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count))
	assert.Equal(t, 5, count)

	tables, err := db.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bundles", "nodes"}, tables)

	ddl, err := db.TableSchema(ctx, "nodes")
	require.NoError(t, err)
	assert.Contains(t, ddl, "path TEXT PRIMARY KEY,")
}

func TestBuildKeepsCaseOnlyDuplicates(t *testing.T) {
	ctx := context.Background()

	b := ggpktest.New()
	lower := b.File("a.txt", []byte("lower"))
	upper := b.File("A.TXT", []byte("UPPER"))
	root := b.Dir("",
		ggpktest.Child{Name: "a.txt", Offset: lower},
		ggpktest.Child{Name: "A.TXT", Offset: upper},
	)
	c, err := bundledggpk.OpenReadOnly(b.WriteFile(t, root, 0), bundledggpk.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	db := openDatabase(t)
	require.NoError(t, NewBuilder(db, 0, nil).Build(ctx, c))

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE path = ? COLLATE NOCASE`, "a.TxT").Scan(&count))
	assert.Equal(t, 2, count)

	var size int64
	require.NoError(t, db.QueryRow(ctx, `SELECT size FROM nodes WHERE path = ?`, "A.TXT").Scan(&size))
	assert.Equal(t, int64(5), size)
}

func TestClosedDatabase(t *testing.T) {
	db := openDatabase(t)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.Exec(context.Background(), `SELECT 1`)
	assert.Error(t, err)
	_, err = db.Tables(context.Background())
	assert.Error(t, err)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(&Options{})
	assert.Error(t, err)
	_, err = Open(nil)
	assert.Error(t, err)
}
