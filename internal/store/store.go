// Package store is the historical roster store: one directory per
// (month, year) partition holding the accumulated decoded rows of every
// distinct source document merged so far.
//
// Partition layout:
//
//	<dir>/<Month>-<Year>/history.csv            accumulated rows, Name,1..N,__HASH__
//	<dir>/<Month>-<Year>/translated.csv         decoded roster of the latest merge
//	<dir>/<Month>-<Year>/original.csv           raw grid of the latest merge
//	<dir>/<Month>-<Year>/original_<hash><ext>   source document, once per hash
//
// history.csv is written first; its rename is the commit point of a merge.
// The other files follow only after a successful commit. Merges into one
// partition are serialized by a per-partition lock so the membership check
// and the append cannot interleave. Readers take no lock: the rename swaps
// the whole file, so they see either the previous or the new history.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"turnocal/internal/fsutil"
	appLog "turnocal/internal/log"
	"turnocal/internal/model"
	"turnocal/internal/roster"
)

const (
	historyFile    = "history.csv"
	translatedFile = "translated.csv"
	originalFile   = "original.csv"

	// HashColumn is the membership index column of history.csv.
	HashColumn = "__HASH__"
)

// Source is what a merge keeps of the imported document besides its rows.
type Source struct {
	// Ext is the document extension including the dot, e.g. ".csv".
	Ext  string
	Body []byte
	Grid model.RawGrid
}

// HistoryRow is one accumulated roster row and the document it came from.
type HistoryRow struct {
	Hash string
	roster.Row
}

// Record is the committed state of one partition.
type Record struct {
	Partition model.Partition
	Days      int
	Rows      []HistoryRow
	hashes    map[string]struct{}
}

// Has reports whether a document hash was already merged.
func (r Record) Has(hash string) bool {
	_, ok := r.hashes[hash]
	return ok
}

// Hashes returns the merged document hashes in first-merge order.
func (r Record) Hashes() []string {
	out := make([]string, 0, len(r.hashes))
	seen := make(map[string]bool, len(r.hashes))
	for _, row := range r.Rows {
		if !seen[row.Hash] {
			seen[row.Hash] = true
			out = append(out, row.Hash)
		}
	}
	return out
}

// Table returns the accumulated rows as Name,1..N text without the hash column.
func (r Record) Table() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, roster.Header(r.Days))
	for _, row := range r.Rows {
		out = append(out, row.Record())
	}
	return out
}

// MergeResult reports what a merge did.
type MergeResult struct {
	AlreadyPresent bool
	// Rows is the number of rows appended by this merge.
	Rows int
	// Total is the partition's row count after the merge.
	Total int
}

// PartitionInfo is a listing entry.
type PartitionInfo struct {
	Partition model.Partition
	Rows      int
}

// Store owns the on-disk partitions. It is safe for concurrent use.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[model.Partition]*sync.Mutex

	// commit replaces history.csv; writeTable outside of tests.
	commit func(path string, rows [][]string) error
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return &Store{
		dir:    dir,
		locks:  make(map[model.Partition]*sync.Mutex),
		commit: writeTable,
	}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockFor(p model.Partition) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[p]
	if !ok {
		l = &sync.Mutex{}
		s.locks[p] = l
	}
	return l
}

func (s *Store) partitionDir(p model.Partition) string {
	return filepath.Join(s.dir, p.Key())
}

// Merge appends r's rows to partition p unless hash was merged before, in
// which case nothing is written and AlreadyPresent is set.
func (s *Store) Merge(ctx context.Context, p model.Partition, hash string, src Source, r roster.Roster) (MergeResult, error) {
	if hash == "" {
		return MergeResult{}, errors.New("store: empty content hash")
	}
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}

	lock := s.lockFor(p)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.readHistory(p)
	switch {
	case errors.Is(err, model.ErrPartitionNotFound):
		rec = Record{Partition: p, Days: r.Days, hashes: map[string]struct{}{}}
	case err != nil:
		return MergeResult{}, err
	}

	if rec.Has(hash) {
		appLog.Info("store: document already merged", "partition", p.Key(), "hash", hash)
		return MergeResult{AlreadyPresent: true, Total: len(rec.Rows)}, nil
	}
	if rec.Days != r.Days {
		return MergeResult{}, fmt.Errorf("store: partition %s has %d days, roster has %d", p.Key(), rec.Days, r.Days)
	}
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}

	dir := s.partitionDir(p)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return MergeResult{}, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	for _, row := range r.Rows {
		rec.Rows = append(rec.Rows, HistoryRow{Hash: hash, Row: row})
	}
	if err := s.commit(filepath.Join(dir, historyFile), historyTable(rec)); err != nil {
		return MergeResult{}, fmt.Errorf("%w: commit %s: %v", model.ErrStoreUnavailable, p.Key(), err)
	}

	// The rows are committed; a failure here only leaves the latest-merge
	// snapshots behind.
	if err := writeAuxiliary(dir, hash, src, r); err != nil {
		appLog.Error("store: failed to write merge snapshots", err, "partition", p.Key(), "hash", hash)
	}

	appLog.Info("store: merged document", "partition", p.Key(), "hash", hash, "rows", len(r.Rows), "total", len(rec.Rows))
	return MergeResult{Rows: len(r.Rows), Total: len(rec.Rows)}, nil
}

func writeAuxiliary(dir, hash string, src Source, r roster.Roster) error {
	docPath := filepath.Join(dir, "original_"+hash+src.Ext)
	if len(src.Body) > 0 && !fsutil.Exists(docPath) {
		if err := fsutil.WriteFileAtomic(docPath, src.Body, 0o600); err != nil {
			return err
		}
	}
	if len(src.Grid) > 0 {
		if err := writeTable(filepath.Join(dir, originalFile), src.Grid.Strings()); err != nil {
			return err
		}
	}
	return writeTable(filepath.Join(dir, translatedFile), r.Table())
}

func historyTable(rec Record) [][]string {
	header := append(roster.Header(rec.Days), HashColumn)
	out := make([][]string, 0, len(rec.Rows)+1)
	out = append(out, header)
	for _, row := range rec.Rows {
		out = append(out, append(row.Record(), row.Hash))
	}
	return out
}

// Read returns the committed state of partition p. It does not wait for a
// merge in progress.
func (s *Store) Read(ctx context.Context, p model.Partition) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return s.readHistory(p)
}

func (s *Store) readHistory(p model.Partition) (Record, error) {
	path := filepath.Join(s.partitionDir(p), historyFile)
	rows, err := readTable(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", model.ErrPartitionNotFound, p.Key())
		}
		return Record{}, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return parseHistory(p, rows)
}

func parseHistory(p model.Partition, rows [][]string) (Record, error) {
	if len(rows) == 0 {
		return Record{}, fmt.Errorf("%w: %s: empty history", model.ErrStoreUnavailable, p.Key())
	}
	header := rows[0]
	if len(header) < 2 || header[0] != roster.NameColumn || header[len(header)-1] != HashColumn {
		return Record{}, fmt.Errorf("%w: %s: unexpected history header %v", model.ErrStoreUnavailable, p.Key(), header)
	}

	days := len(header) - 2
	rec := Record{Partition: p, Days: days, hashes: make(map[string]struct{})}
	for _, line := range rows[1:] {
		if len(line) == 0 {
			continue
		}
		cells := make([]string, days)
		for d := 0; d < days && d+1 < len(line); d++ {
			cells[d] = line[d+1]
		}
		hash := ""
		if len(line) == days+2 {
			hash = line[days+1]
		}
		rec.hashes[hash] = struct{}{}
		rec.Rows = append(rec.Rows, HistoryRow{Hash: hash, Row: roster.Row{Name: line[0], Cells: cells}})
	}
	return rec, nil
}

// Partitions lists every committed partition with its row count, newest first.
func (s *Store) Partitions(ctx context.Context) ([]PartitionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	out := make([]PartitionInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := model.ParsePartition(e.Name())
		if err != nil {
			continue
		}
		rec, err := s.Read(ctx, p)
		if errors.Is(err, model.ErrPartitionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, PartitionInfo{Partition: p, Rows: len(rec.Rows)})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[j].Partition.Before(out[i].Partition)
	})
	return out, nil
}

// LookupPerson returns every accumulated row of name (case-insensitive).
// A miss is ErrPersonNotFound, which doubles as the membership check.
func (s *Store) LookupPerson(ctx context.Context, p model.Partition, name string) ([]HistoryRow, error) {
	rec, err := s.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	key := roster.PersonKey(name)
	var out []HistoryRow
	for _, row := range rec.Rows {
		if roster.PersonKey(row.Name) == key {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q in %s", model.ErrPersonNotFound, name, p.Key())
	}
	return out, nil
}

// OriginalRows returns the raw grid rows of name from the latest merge.
func (s *Store) OriginalRows(ctx context.Context, p model.Partition, name string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := readTable(filepath.Join(s.partitionDir(p), originalFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrPartitionNotFound, p.Key())
		}
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}

	key := roster.PersonKey(name)
	var out [][]string
	for _, line := range rows {
		if len(line) > 0 && roster.PersonKey(roster.CanonicalName(line[0])) == key {
			out = append(out, line)
		}
	}
	return out, nil
}

// FindBySlot returns the people whose accumulated row holds exactly value on
// day. Nobody matching is an empty result, not an error.
func (s *Store) FindBySlot(ctx context.Context, p model.Partition, day int, value string) ([]string, error) {
	rec, err := s.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	if day < 1 || day > rec.Days {
		return nil, fmt.Errorf("%w: day %d not in 1..%d", model.ErrDayOutOfRange, day, rec.Days)
	}

	value = strings.TrimSpace(value)
	names := []string{}
	seen := make(map[string]bool)
	for _, row := range rec.Rows {
		if row.Cell(day) != value {
			continue
		}
		key := roster.PersonKey(row.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, row.Name)
	}
	return names, nil
}
