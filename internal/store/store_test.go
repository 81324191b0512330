package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnocal/internal/model"
	"turnocal/internal/roster"
)

var april2025 = model.Partition{Month: time.April, Year: 2025}

func cells(vals ...string) []*string {
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v != "" {
			out[i] = model.Cell(v)
		}
	}
	return out
}

func sampleImport(t *testing.T, rows ...[]*string) (Source, roster.Roster, string) {
	t.Helper()
	grid := append(model.RawGrid{cells("apr-25", "1", "2", "3", "4", "5")}, rows...)
	a, err := roster.ResolveGridAnchor(grid)
	require.NoError(t, err)
	body := []byte(strings.Join(flatten(grid), ";"))
	return Source{Ext: ".csv", Body: body, Grid: grid}, roster.Translate(grid, a), HashBytes(body)
}

func flatten(g model.RawGrid) []string {
	var out []string
	for _, row := range g.Strings() {
		out = append(out, strings.Join(row, ","))
	}
	return out
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestMerge_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t,
		cells("ROSSI", "g14", "", "", "", "h16"),
		cells("BIANCHI", "OFF", "", "", "", "h16"),
	)

	res, err := s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)
	assert.False(t, res.AlreadyPresent)
	assert.Equal(t, 2, res.Rows)

	once, err := s.Read(ctx, april2025)
	require.NoError(t, err)

	res, err = s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)
	assert.True(t, res.AlreadyPresent)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, 2, res.Total)

	twice, err := s.Read(ctx, april2025)
	require.NoError(t, err)
	if diff := cmp.Diff(once.Table(), twice.Table()); diff != "" {
		t.Fatalf("table changed after duplicate merge (-once +twice):\n%s", diff)
	}
	assert.Equal(t, []string{hash}, twice.Hashes())
}

func TestMerge_DistinctDocumentsAppend(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src1, r1, h1 := sampleImport(t, cells("ROSSI", "g14"))
	src2, r2, h2 := sampleImport(t, cells("ROSSI", "h16"), cells("NERI", "d15"))
	require.NotEqual(t, h1, h2)

	_, err := s.Merge(ctx, april2025, h1, src1, r1)
	require.NoError(t, err)
	res, err := s.Merge(ctx, april2025, h2, src2, r2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)

	rec, err := s.Read(ctx, april2025)
	require.NoError(t, err)
	require.Len(t, rec.Rows, 3)
	assert.Equal(t, 30, rec.Days)
	assert.True(t, rec.Has(h1))
	assert.True(t, rec.Has(h2))
	assert.Equal(t, h1, rec.Rows[0].Hash)
	assert.Equal(t, h2, rec.Rows[2].Hash)

	dir := filepath.Join(s.Dir(), "April-2025")
	for _, name := range []string{"history.csv", "translated.csv", "original.csv", "original_" + h1 + ".csv", "original_" + h2 + ".csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestStore_RestartRecoversState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	src, r, hash := sampleImport(t, cells("ROSSI, Mario", "g14", "OFF"))
	_, err = s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)
	before, err := s.Read(ctx, april2025)
	require.NoError(t, err)

	reopened, err := New(dir)
	require.NoError(t, err)
	after, err := reopened.Read(ctx, april2025)
	require.NoError(t, err)

	assert.Equal(t, before.Table(), after.Table())
	assert.Equal(t, before.Hashes(), after.Hashes())

	res, err := reopened.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)
	assert.True(t, res.AlreadyPresent)
}

func TestMerge_ConcurrentSameHashCommitsOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t, cells("ROSSI", "g14"), cells("NERI", "h16"))

	const workers = 16
	var wg sync.WaitGroup
	results := make([]MergeResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Merge(ctx, april2025, hash, src, r)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].AlreadyPresent {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	rec, err := s.Read(ctx, april2025)
	require.NoError(t, err)
	assert.Len(t, rec.Rows, 2)
}

func TestRead_PartitionNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Read(context.Background(), april2025)
	assert.ErrorIs(t, err, model.ErrPartitionNotFound)
	assert.True(t, model.IsNotFound(err))
}

func TestMerge_FailedCommitLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src1, r1, h1 := sampleImport(t, cells("ROSSI", "g14"))
	_, err := s.Merge(ctx, april2025, h1, src1, r1)
	require.NoError(t, err)

	s.commit = func(string, [][]string) error { return errors.New("disk full") }
	src2, r2, h2 := sampleImport(t, cells("ROSSI", "h16"), cells("NERI", "d15"))
	_, err = s.Merge(ctx, april2025, h2, src2, r2)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)

	rec, err := s.Read(ctx, april2025)
	require.NoError(t, err)
	assert.False(t, rec.Has(h2))
	assert.Len(t, rec.Rows, 1)

	orig, err := s.OriginalRows(ctx, april2025, "ROSSI")
	require.NoError(t, err)
	require.Len(t, orig, 1)
	assert.Equal(t, "g14", orig[0][1])
	orig, err = s.OriginalRows(ctx, april2025, "NERI")
	require.NoError(t, err)
	assert.Empty(t, orig)

	dir := filepath.Join(s.Dir(), "April-2025")
	translated, err := readTable(filepath.Join(dir, translatedFile))
	require.NoError(t, err)
	assert.Len(t, translated, 2)
	assert.NoFileExists(t, filepath.Join(dir, "original_"+h2+".csv"))
}

func TestRead_DoesNotWaitForMerge(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t, cells("ROSSI", "g14"))
	_, err := s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)

	// Hold the partition as a merge in progress would.
	lock := s.lockFor(april2025)
	lock.Lock()
	defer lock.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.LookupPerson(ctx, april2025, "rossi")
		if err == nil {
			_, err = s.OriginalRows(ctx, april2025, "rossi")
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read blocked behind the partition merge lock")
	}
}

func TestLookupPerson(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t, cells("ROSSI, Mario", "g14"), cells("NERI", "OFF"))
	_, err := s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)

	rows, err := s.LookupPerson(ctx, april2025, " rossi ")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "07:00 (7)", rows[0].Cell(1))

	orig, err := s.OriginalRows(ctx, april2025, "ROSSI")
	require.NoError(t, err)
	require.Len(t, orig, 1)
	assert.Equal(t, "ROSSI, Mario", orig[0][0])

	_, err = s.LookupPerson(ctx, april2025, "VERDI")
	assert.ErrorIs(t, err, model.ErrPersonNotFound)
}

func TestFindBySlot(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t,
		cells("ROSSI", "", "", "", "", "h16"),
		cells("BIANCHI", "", "", "", "", "h16"),
		cells("NERI", "", "", "", "", "g14"),
	)
	_, err := s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)

	names, err := s.FindBySlot(ctx, april2025, 5, "08:00 (8)")
	require.NoError(t, err)
	assert.Equal(t, []string{"ROSSI", "BIANCHI"}, names)

	names, err = s.FindBySlot(ctx, april2025, 5, "09:00 (4)")
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)

	_, err = s.FindBySlot(ctx, april2025, 31, "08:00 (8)")
	assert.ErrorIs(t, err, model.ErrDayOutOfRange)
}

func TestPartitions_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	src, r, hash := sampleImport(t, cells("ROSSI", "g14"), cells("NERI", "g14"))

	march := model.Partition{Month: time.March, Year: 2025}
	dec := model.Partition{Month: time.December, Year: 2024}
	marchRoster := blankRoster(r, march.Anchor())
	decRoster := blankRoster(r, dec.Anchor())

	_, err := s.Merge(ctx, april2025, hash, src, r)
	require.NoError(t, err)
	_, err = s.Merge(ctx, march, hash, src, marchRoster)
	require.NoError(t, err)
	_, err = s.Merge(ctx, dec, hash, src, decRoster)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "not-a-partition"), 0o700))

	got, err := s.Partitions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, april2025, got[0].Partition)
	assert.Equal(t, march, got[1].Partition)
	assert.Equal(t, dec, got[2].Partition)
	assert.Equal(t, 2, got[0].Rows)
}

func blankRoster(r roster.Roster, a model.Anchor) roster.Roster {
	out := roster.Roster{Anchor: a, Days: a.Days()}
	for _, row := range r.Rows {
		out.Rows = append(out.Rows, roster.Row{Name: row.Name, Cells: make([]string, out.Days)})
	}
	return out
}

func TestHashDocument(t *testing.T) {
	h, err := HashDocument(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", h)
	assert.Equal(t, h, HashBytes([]byte("abc")))
}
