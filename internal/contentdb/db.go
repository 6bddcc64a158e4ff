// Package contentdb is the content database: entities kept in storage and the retrieval
// index, presented as one composite matrix with a segment per configured field.
package contentdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/embedding"
	"github.com/hyperjump/contentdb/internal/field"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/retrieval"
	"github.com/hyperjump/contentdb/internal/storage"
	"github.com/hyperjump/contentdb/internal/vector"
	"github.com/hyperjump/contentdb/pkg/utils"
)

// DB owns the backends and the matrix built over them. Reads may run concurrently;
// Rebuild swaps the matrix under a write lock.
type DB struct {
	cfg      *config.Config
	store    storage.Storage
	index    retrieval.Retriever
	embedder embedding.Embedder
	vectors  map[string]*vector.MemoryIndex
	logger   *zap.Logger

	mu       sync.RWMutex
	segments []*field.Segment
	matrix   *composite.Matrix
	labels   []string
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) { db.logger = utils.OrNop(l) }
}

// WithStorage uses s instead of opening the SQLite database from the config.
func WithStorage(s storage.Storage) Option {
	return func(db *DB) { db.store = s }
}

// WithRetriever uses r instead of opening the Bleve index from the config.
func WithRetriever(r retrieval.Retriever) Option {
	return func(db *DB) { db.index = r }
}

// WithEmbedder uses e for embedding fields instead of building one from the config.
func WithEmbedder(e embedding.Embedder) Option {
	return func(db *DB) { db.embedder = e }
}

// Open opens the backends named in cfg and builds the matrix.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*DB, error) {
	db := &DB{
		cfg:     cfg,
		vectors: make(map[string]*vector.MemoryIndex),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}

	if db.store == nil {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		db.store = s
	}
	if db.index == nil {
		idx, err := retrieval.NewBleveIndex(cfg.Storage.IndexPath, cfg.Matrix.Fields, cfg.Matrix.SpatialField,
			retrieval.WithLogger(db.logger))
		if err != nil {
			_ = db.store.Close()
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		db.index = idx
	}
	if err := db.openVectors(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.build(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) openVectors() error {
	for _, f := range db.cfg.Matrix.Fields {
		if f.Type != config.KindEmbedding {
			continue
		}
		if db.embedder == nil {
			e, err := embedding.New(db.cfg.Embedding, db.logger)
			if err != nil {
				return err
			}
			db.embedder = e
		}
		vi, err := vector.NewMemoryIndex(db.embedder.Dimensions())
		if err != nil {
			return fmt.Errorf("failed to create vector index for %q: %w", f.Name, err)
		}
		if err := vi.Load(db.vectorPath(f.Name)); err != nil {
			return fmt.Errorf("failed to load vectors of %q: %w", f.Name, err)
		}
		db.vectors[f.Name] = vi
		db.logger.Debug("vector index loaded", zap.String("field", f.Name), zap.Int("size", vi.Size()))
	}
	return nil
}

func (db *DB) vectorPath(name string) string {
	if db.cfg.Storage.VectorIndexPath == "" {
		return ""
	}
	return filepath.Join(db.cfg.Storage.VectorIndexPath, name+".vec")
}

// build creates one segment per field concurrently and adjoins them.
func (db *DB) build(ctx context.Context) error {
	fields := db.cfg.Matrix.Fields
	segments := make([]*field.Segment, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fields {
		g.Go(func() error {
			deps := field.Deps{Entities: db.store, Retriever: db.index}
			if vi, ok := db.vectors[f.Name]; ok {
				deps.Vectors = vi
			}
			s, err := field.New(gctx, f, db.cfg.Matrix.MaxRows, deps, field.WithLogger(db.logger))
			if err != nil {
				return err
			}
			segments[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to build field segments: %w", err)
	}

	parts := make([]composite.Segment, len(segments))
	var labels []string
	for i, s := range segments {
		parts[i] = s
		labels = append(labels, s.Labels()...)
	}
	m, err := composite.NewMatrix(parts...)
	if err != nil {
		return fmt.Errorf("failed to build matrix: %w", err)
	}

	db.mu.Lock()
	db.segments, db.matrix, db.labels = segments, m, labels
	db.mu.Unlock()

	db.logger.Info("content matrix built",
		zap.Int("rows", m.Rows()), zap.Int("cols", m.Cols()), zap.Int("segments", len(segments)))
	return nil
}

// Matrix returns the current composite matrix.
func (db *DB) Matrix() *composite.Matrix {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.matrix
}

// Labels returns the column labels of the current matrix.
func (db *DB) Labels() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.labels...)
}

// Info describes the matrix shape and its segments.
func (db *DB) Info() *models.MatrixInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()
	info := &models.MatrixInfo{Rows: db.matrix.Rows(), Cols: db.matrix.Cols()}
	index := db.matrix.Index()
	for i, s := range db.segments {
		info.Segments = append(info.Segments, &models.Segment{
			Field:  s.Name(),
			Kind:   s.Kind(),
			Offset: index.Offset(i),
			Width:  index.Width(i),
		})
	}
	return info
}

// Row returns the non-zero cells of row id in column order.
func (db *DB) Row(ctx context.Context, id int) (*models.RowResponse, error) {
	m, labels := db.snapshot()
	row, err := m.RowView(id)
	if err != nil {
		return nil, err
	}
	resp := &models.RowResponse{ID: id, Cells: []*models.Cell{}}
	for c, x := range row.All() {
		if x != 0 {
			resp.Cells = append(resp.Cells, &models.Cell{Row: id, Column: c, Label: labels[c], Value: x})
		}
	}
	return resp, nil
}

// Cell returns one matrix element.
func (db *DB) Cell(ctx context.Context, row, col int) (*models.Cell, error) {
	m, labels := db.snapshot()
	x, err := m.At(row, col)
	if err != nil {
		return nil, err
	}
	return &models.Cell{Row: row, Column: col, Label: labels[col], Value: x}, nil
}

// Column returns the non-zero cells of column col.
func (db *DB) Column(ctx context.Context, col int) (*models.ColumnResponse, error) {
	m, labels := db.snapshot()
	v, err := m.ColumnView(col)
	if err != nil {
		return nil, err
	}
	resp := &models.ColumnResponse{Column: col, Label: labels[col], Cells: []*models.Cell{}}
	for r, x := range v.NonZero() {
		resp.Cells = append(resp.Cells, &models.Cell{Row: r, Column: col, Value: x})
	}
	return resp, nil
}

func (db *DB) snapshot() (*composite.Matrix, []string) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.matrix, db.labels
}

// Candidates returns the ids matching q. The limit falls back to the configured default
// and is capped at the configured maximum.
func (db *DB) Candidates(ctx context.Context, q *models.CandidateQuery) (*models.CandidatesResponse, error) {
	start := time.Now()
	q.Limit = db.clampLimit(q.Limit)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ids, err := db.index.Candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, ids.GetCardinality())
	for _, id := range ids.ToArray() {
		out = append(out, int(id))
	}
	query := q.Query
	if query == "" {
		query = q.Field + ":" + q.Keyword
	}
	db.logger.Debug("candidates", zap.String("query", query), zap.Int("hits", len(out)))
	return &models.CandidatesResponse{
		IDs:       out,
		Total:     len(out),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query,
	}, nil
}

func (db *DB) clampLimit(limit int) int {
	if limit <= 0 {
		limit = db.cfg.Retrieval.DefaultLimit
	}
	if ceiling := db.cfg.Retrieval.MaxLimit; ceiling > 0 && limit > ceiling {
		limit = ceiling
	}
	return limit
}

// Get returns the stored entity id.
func (db *DB) Get(ctx context.Context, id int) (*models.Entity, error) {
	return db.store.GetEntity(ctx, id)
}

// SetContent stores the entity, indexes it, embeds its embedding fields and drops the
// cached rows of id. New terms only become columns after Rebuild.
func (db *DB) SetContent(ctx context.Context, in *models.EntityInput) (*models.Entity, error) {
	if err := in.Validate(db.cfg.Matrix.MaxRows); err != nil {
		return nil, err
	}
	e := in.Entity()
	if err := db.store.PutEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to store entity: %w", err)
	}
	if err := db.index.Index(ctx, e); err != nil {
		return nil, err
	}
	if err := db.embed(ctx, e); err != nil {
		return nil, err
	}
	db.invalidate(e.ID)
	db.logger.Debug("entity stored", zap.Int("id", e.ID), zap.String("source", e.Source))
	return db.store.GetEntity(ctx, e.ID)
}

func (db *DB) embed(ctx context.Context, e *models.Entity) error {
	for _, f := range db.cfg.Matrix.Fields {
		vi, ok := db.vectors[f.Name]
		if !ok {
			continue
		}
		text := attributeText(e.Attributes[f.Source])
		if text == "" {
			if err := vi.Remove(ctx, e.ID); err != nil {
				return err
			}
			continue
		}
		vec, err := db.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed %q of entity %d: %w", f.Name, e.ID, err)
		}
		if err := vi.Put(ctx, e.ID, vec); err != nil {
			return fmt.Errorf("failed to store vector: %w", err)
		}
	}
	return nil
}

// Delete removes entity id from every backend. Deleting a missing entity is not an error.
func (db *DB) Delete(ctx context.Context, id int) error {
	if err := db.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from index: %w", err)
	}
	for name, vi := range db.vectors {
		if err := vi.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to delete vector of %q: %w", name, err)
		}
	}
	if err := db.store.DeleteEntity(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	db.invalidate(id)
	db.logger.Debug("entity deleted", zap.Int("id", id))
	return nil
}

func (db *DB) invalidate(id int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, s := range db.segments {
		s.Invalidate(id)
	}
}

const rebuildPage = 500

// Rebuild re-indexes every stored entity, embeds the ones without vectors and rebuilds
// the matrix so the vocabularies reflect the current content. It returns the number
// of entities visited.
func (db *DB) Rebuild(ctx context.Context) (int, error) {
	n := 0
	for offset := 0; ; offset += rebuildPage {
		page, err := db.store.ListEntities(ctx, offset, rebuildPage)
		if err != nil {
			return n, fmt.Errorf("failed to list entities: %w", err)
		}
		for _, e := range page {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if err := db.index.Index(ctx, e); err != nil {
				return n, err
			}
			if db.missingVector(e.ID) {
				if err := db.embed(ctx, e); err != nil {
					return n, err
				}
			}
			n++
		}
		if len(page) < rebuildPage {
			break
		}
	}
	if err := db.build(ctx); err != nil {
		return n, err
	}
	return n, nil
}

func (db *DB) missingVector(id int) bool {
	for _, vi := range db.vectors {
		if _, ok := vi.Get(id); !ok {
			return true
		}
	}
	return false
}

// Status reports counts and disk usage.
func (db *DB) Status(ctx context.Context) (*models.StatusResponse, error) {
	entities, err := db.store.CountEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	sources, err := db.store.CountSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	indexed, err := db.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed entities: %w", err)
	}
	info := db.Info()
	resp := &models.StatusResponse{
		Entities: entities,
		Sources:  sources,
		Indexed:  indexed,
		Rows:     info.Rows,
		Cols:     info.Cols,
		Segments: len(info.Segments),
	}
	for _, vi := range db.vectors {
		resp.Vectors += vi.Size()
	}
	disk, err := storage.DiskUsageBytes(db.cfg.Storage.DatabasePath, db.cfg.Storage.IndexPath, db.cfg.Storage.VectorIndexPath)
	if err == nil {
		resp.DiskUsageBytes = disk
	}
	return resp, nil
}

// Store returns the entity storage, used by ingestion to allocate ids for sources.
func (db *DB) Store() storage.Storage { return db.store }

// MaxRows returns the row capacity.
func (db *DB) MaxRows() int { return db.cfg.Matrix.MaxRows }

// Save persists the vector indices.
func (db *DB) Save() error {
	for name, vi := range db.vectors {
		if err := vi.Save(db.vectorPath(name)); err != nil {
			return fmt.Errorf("failed to save vectors of %q: %w", name, err)
		}
	}
	return nil
}

// Close saves the vector indices and closes every backend.
func (db *DB) Close() error {
	var errs []error
	if err := db.Save(); err != nil {
		errs = append(errs, err)
	}
	if db.embedder != nil {
		errs = append(errs, db.embedder.Close())
	}
	if db.index != nil {
		errs = append(errs, db.index.Close())
	}
	if db.store != nil {
		errs = append(errs, db.store.Close())
	}
	return errors.Join(errs...)
}
