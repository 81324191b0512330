// Package service wires extraction, decoding, the historical store and feed
// synthesis into the operations the CLI and HTTP layers call.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"turnocal/internal/cache"
	"turnocal/internal/catalog"
	"turnocal/internal/extract"
	"turnocal/internal/ics"
	appLog "turnocal/internal/log"
	"turnocal/internal/model"
	"turnocal/internal/roster"
	"turnocal/internal/store"
)

// Options configures a Service. Store and Feeds.Dir are required.
type Options struct {
	Store   *store.Store
	Catalog *catalog.Catalog
	Feeds   ics.Writer
	Results *cache.Cache[*ImportResult]

	// FeedWorkers bounds parallel feed writes; 4 when zero.
	FeedWorkers int

	// Extractors picks an extractor per file name; extract.ForName when nil.
	Extractors func(name string) (extract.Extractor, error)

	Now func() time.Time
}

// ImportResult is everything one import produced. It is kept in the result
// cache under Token.
type ImportResult struct {
	ID        string
	Token     string
	Filename  string
	Hash      string
	Partition model.Partition
	Original  [][]string
	Roster    roster.Roster
	Merge     store.MergeResult

	// Feeds maps person name to the written feed path.
	Feeds     map[string]string
	FeedError string
}

// Service is safe for concurrent use.
type Service struct {
	store      *store.Store
	catalog    *catalog.Catalog
	feeds      ics.Writer
	results    *cache.Cache[*ImportResult]
	workers    int
	extractors func(name string) (extract.Extractor, error)
	now        func() time.Time
}

// New builds a Service from opts.
func New(opts Options) *Service {
	s := &Service{
		store:      opts.Store,
		catalog:    opts.Catalog,
		feeds:      opts.Feeds,
		results:    opts.Results,
		workers:    opts.FeedWorkers,
		extractors: opts.Extractors,
		now:        opts.Now,
	}
	if s.results == nil {
		s.results = cache.New[*ImportResult]()
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	if s.extractors == nil {
		s.extractors = extract.ForName
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.feeds.Location == nil {
		s.feeds.Location = time.Local
	}
	return s
}

// Results exposes the result cache, e.g. for the janitor.
func (s *Service) Results() *cache.Cache[*ImportResult] {
	return s.results
}

// Location is the civil timezone feeds are localized to.
func (s *Service) Location() *time.Location {
	return s.feeds.Location
}

// ResolveAnchor finds the reporting period in a grid's header row.
func (s *Service) ResolveAnchor(grid model.RawGrid) (model.Anchor, error) {
	return roster.ResolveGridAnchor(grid)
}

// Translate decodes a grid for the given anchor.
func (s *Service) Translate(grid model.RawGrid, a model.Anchor) roster.Roster {
	return roster.Translate(grid, a)
}

// Merge stores an already translated roster.
func (s *Service) Merge(ctx context.Context, p model.Partition, hash string, src store.Source, r roster.Roster) (store.MergeResult, error) {
	return s.store.Merge(ctx, p, hash, src, r)
}

// Import runs the whole pipeline for one document: extract, anchor,
// translate, merge, then write a feed for every person. Nothing is merged
// when extraction or anchoring fails. Feed failures do not undo the merge;
// they are reported in FeedError.
func (s *Service) Import(ctx context.Context, doc extract.Document) (*ImportResult, error) {
	ex, err := s.extractors(doc.Name)
	if err != nil {
		return nil, err
	}
	grid, err := ex.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, model.ErrEmptyExtraction
	}

	anchor, err := roster.ResolveGridAnchor(grid)
	if err != nil {
		return nil, err
	}

	r := roster.Translate(grid, anchor)
	if len(r.Rows) == 0 {
		return nil, fmt.Errorf("%w: no person rows under the header", model.ErrEmptyExtraction)
	}

	p := model.Partition(anchor)
	hash := store.HashBytes(doc.Body)
	src := store.Source{Ext: doc.Ext(), Body: doc.Body, Grid: grid}

	merge, err := s.store.Merge(ctx, p, hash, src, r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{
		ID:        uuid.NewString(),
		Filename:  doc.Name,
		Hash:      hash,
		Partition: p,
		Original:  grid.Strings(),
		Roster:    r,
		Merge:     merge,
	}

	feeds, err := s.writeFeeds(ctx, p, r)
	res.Feeds = feeds
	if err != nil {
		appLog.Error("import: feed synthesis failed", err, "partition", p.Key(), "file", doc.Name)
		res.FeedError = err.Error()
	}

	s.recordImport(ctx, res)
	res.Token = s.results.Put(res)

	appLog.Info("import completed",
		"file", doc.Name,
		"partition", p.Key(),
		"hash", hash,
		"rows", len(r.Rows),
		"anomalies", len(r.Anomalies),
		"already_present", merge.AlreadyPresent,
		"feeds", len(feeds),
	)
	return res, nil
}

// ImportFile reads path and imports it.
func (s *Service) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, extract.Document{Name: path, Body: body})
}

func (s *Service) recordImport(ctx context.Context, res *ImportResult) {
	if s.catalog == nil {
		return
	}
	err := s.catalog.RecordImport(ctx, catalog.Import{
		ID:             res.ID,
		Hash:           res.Hash,
		Partition:      res.Partition.Key(),
		Filename:       res.Filename,
		Rows:           len(res.Roster.Rows),
		Anomalies:      len(res.Roster.Anomalies),
		AlreadyPresent: res.Merge.AlreadyPresent,
		ImportedAt:     s.now(),
	})
	if err != nil {
		appLog.Error("import: catalog record failed", err, "id", res.ID)
	}
}

// writeFeeds synthesizes and writes one feed per roster row in parallel.
func (s *Service) writeFeeds(ctx context.Context, p model.Partition, r roster.Roster) (map[string]string, error) {
	var (
		mu    sync.Mutex
		paths = make(map[string]string, len(r.Rows))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, row := range r.Rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := s.writeFeed(gctx, p, row.Name, row.Cells)
			if err != nil {
				return err
			}
			mu.Lock()
			paths[row.Name] = path
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return paths, err
}

func (s *Service) writeFeed(ctx context.Context, p model.Partition, person string, cells []string) (string, error) {
	events, skipped := ics.Synthesize(person, cells, p.Anchor(), s.feeds.Location)
	for _, err := range skipped {
		appLog.Debug("calendar: day skipped", "person", person, "partition", p.Key(), "reason", err.Error())
	}

	path, err := s.feeds.Write(person, p.Anchor(), events)
	if err != nil {
		return "", err
	}

	if s.catalog != nil {
		ferr := s.catalog.RecordFeed(ctx, catalog.Feed{
			Person:    person,
			Partition: p.Key(),
			Path:      path,
			Events:    len(events),
			WrittenAt: s.now(),
		})
		if ferr != nil {
			appLog.Error("calendar: catalog record failed", ferr, "person", person)
		}
	}
	return path, nil
}

// Result returns a cached import result by session token.
func (s *Service) Result(token string) (*ImportResult, bool) {
	return s.results.Get(token)
}

// ListPartitions lists stored months with their row counts, newest first.
func (s *Service) ListPartitions(ctx context.Context) ([]store.PartitionInfo, error) {
	return s.store.Partitions(ctx)
}

// LookupPerson returns a person's accumulated rows; ErrPersonNotFound
// means the name is not on the roster (the membership check).
func (s *Service) LookupPerson(ctx context.Context, p model.Partition, name string) ([]store.HistoryRow, error) {
	return s.store.LookupPerson(ctx, p, name)
}

// PersonalView is a person's decoded rows next to their raw source rows.
type PersonalView struct {
	Partition model.Partition
	Person    string
	Header    []string
	Decoded   []store.HistoryRow
	Original  [][]string
}

// PersonalView gates on membership, then returns decoded and original rows.
func (s *Service) PersonalView(ctx context.Context, p model.Partition, name string) (*PersonalView, error) {
	rows, err := s.store.LookupPerson(ctx, p, name)
	if err != nil {
		return nil, err
	}
	orig, err := s.store.OriginalRows(ctx, p, name)
	if err != nil && !model.IsNotFound(err) {
		return nil, err
	}
	return &PersonalView{
		Partition: p,
		Person:    rows[0].Name,
		Header:    roster.Header(len(rows[0].Cells)),
		Decoded:   rows,
		Original:  orig,
	}, nil
}

// FindBySlot lists who holds exactly value on day of partition p.
func (s *Service) FindBySlot(ctx context.Context, p model.Partition, day int, value string) ([]string, error) {
	return s.store.FindBySlot(ctx, p, day, value)
}

var clockRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// ErrInvalidSlot is returned for a malformed swap request.
var ErrInvalidSlot = errors.New("invalid shift slot")

// SwapCandidates finds who works start/duration on date, the partner pool
// for a shift swap.
func (s *Service) SwapCandidates(ctx context.Context, date time.Time, start string, duration int) ([]string, error) {
	if !clockRe.MatchString(start) || duration <= 0 {
		return nil, fmt.Errorf("%w: %q for %dh", ErrInvalidSlot, start, duration)
	}
	p := model.Partition{Month: date.Month(), Year: date.Year()}
	return s.store.FindBySlot(ctx, p, date.Day(), fmt.Sprintf("%s (%d)", start, duration))
}

// SynthesizeCalendar writes the feed of one person for partition p from
// the accumulated history and returns its path. When several documents
// carried the person, later rows win per day.
func (s *Service) SynthesizeCalendar(ctx context.Context, p model.Partition, person string) (string, error) {
	rows, err := s.store.LookupPerson(ctx, p, person)
	if err != nil {
		return "", err
	}
	cells := make([]string, len(rows[0].Cells))
	for _, row := range rows {
		for i, v := range row.Cells {
			if v != "" && i < len(cells) {
				cells[i] = v
			}
		}
	}
	return s.writeFeed(ctx, p, rows[0].Name, cells)
}

// Feed is a served calendar file with its parsed event count.
type Feed struct {
	Path   string
	Body   []byte
	Events int
}

// Feed loads the feed of person for month. With a year the feed is
// rebuilt from that partition, so a person missing from it yields
// ErrPersonNotFound even when a feed of another year is on disk. Without
// a year the last written file is served as is.
func (s *Service) Feed(ctx context.Context, person string, month time.Month, year int) (*Feed, error) {
	var path string
	if year == 0 {
		path = ics.FeedPath(s.feeds.Dir, person, model.Anchor{Month: month})
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: no feed %s", model.ErrPersonNotFound, ics.FeedName(person, month.String()))
		}
	} else {
		var err error
		path, err = s.SynthesizeCalendar(ctx, model.Partition{Month: month, Year: year}, person)
		if err != nil {
			return nil, err
		}
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	events, err := ics.ParseFeed(body, s.Location())
	if err != nil {
		return nil, fmt.Errorf("feed %s is corrupt: %w", path, err)
	}
	return &Feed{Path: path, Body: body, Events: len(events)}, nil
}

// Imports lists catalog entries, newest first.
func (s *Service) Imports(ctx context.Context, partition string, limit int) ([]catalog.Import, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.Imports(ctx, partition, limit)
}
