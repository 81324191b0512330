package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestCatalog creates an in-memory catalog for testing.
func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := Open(":memory:")
	require.NoError(t, err, "Failed to open test catalog")
	t.Cleanup(func() {
		require.NoError(t, c.Close(), "Failed to close test catalog")
	})
	return c
}

func TestCatalog_RecordImport(t *testing.T) {
	ctx := context.Background()
	c := setupTestCatalog(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, c.RecordImport(ctx, Import{ID: "a", Hash: "h1", Partition: "April-2025", Filename: "apr.csv", Rows: 12, ImportedAt: base}))
	require.NoError(t, c.RecordImport(ctx, Import{ID: "b", Hash: "h1", Partition: "April-2025", Filename: "apr.csv", AlreadyPresent: true, ImportedAt: base.Add(time.Minute)}))
	require.NoError(t, c.RecordImport(ctx, Import{ID: "c", Hash: "h2", Partition: "May-2025", Filename: "may.csv", Rows: 3, Anomalies: 1, ImportedAt: base.Add(2 * time.Minute)}))

	all, err := c.Imports(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, 1, all[0].Anomalies)

	april, err := c.Imports(ctx, "April-2025", 0)
	require.NoError(t, err)
	require.Len(t, april, 2)
	assert.True(t, april[0].AlreadyPresent)
	assert.False(t, april[1].AlreadyPresent)
	assert.True(t, april[1].ImportedAt.Equal(base))

	limited, err := c.Imports(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCatalog_RecordFeedUpserts(t *testing.T) {
	ctx := context.Background()
	c := setupTestCatalog(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, c.RecordFeed(ctx, Feed{Person: "ROSSI", Partition: "April-2025", Path: "/tmp/rossi_april.ics", Events: 3, WrittenAt: at}))
	require.NoError(t, c.RecordFeed(ctx, Feed{Person: "ROSSI", Partition: "April-2025", Path: "/tmp/rossi_april.ics", Events: 5, WrittenAt: at.Add(time.Hour)}))
	require.NoError(t, c.RecordFeed(ctx, Feed{Person: "NERI", Partition: "April-2025", Path: "/tmp/neri_april.ics", Events: 1, WrittenAt: at}))

	feeds, err := c.Feeds(ctx, "April-2025")
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "NERI", feeds[0].Person)
	assert.Equal(t, 5, feeds[1].Events)
}

func TestCatalog_OpenFileReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.RecordImport(ctx, Import{ID: "a", Hash: "h", Partition: "May-2025", Filename: "m.csv", ImportedAt: time.Now()}))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	all, err := c.Imports(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
