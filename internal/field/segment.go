// Package field casts entity attributes to read-only column segments of the content
// matrix. Each declared field contributes the columns of its kind:
//
//	boolean      1 column, 1 when set
//	numerical    1 column, the value
//	multinomial  1 column per top value, 1 when the entity holds it
//	text         1 column per top term, term frequency / document frequency
//	embedding    1 column per dimension of the entity's stored vector
//
// Rows are entity ids. An entity that does not exist is an all-zero row.
package field

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/retrieval"
	"github.com/hyperjump/contentdb/internal/sparse"
	"github.com/hyperjump/contentdb/internal/storage"
	"github.com/hyperjump/contentdb/internal/vector"
	"github.com/hyperjump/contentdb/pkg/utils"
)

// EntityLoader reads entities by id. A missing entity is reported with storage.ErrNotFound.
type EntityLoader interface {
	GetEntity(ctx context.Context, id int) (*models.Entity, error)
}

// Deps are the backends a segment reads from. Retriever is required for multinomial
// and text fields, Vectors for embedding fields.
type Deps struct {
	Entities  EntityLoader
	Retriever retrieval.Retriever
	Vectors   vector.VectorIndex
}

// Segment is one field of the content matrix. It is read-only.
type Segment struct {
	cfg  config.FieldConfig
	rows int
	deps Deps

	terms   []retrieval.TermCount // column order, multinomial and text only
	columns map[string]int

	cache *utils.LRU[int, map[int]float64]
	// gen counts invalidations; a row computed across one is not cached.
	genMu sync.Mutex
	gen   uint64

	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Segment.
type Option func(*Segment)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segment) { s.logger = utils.OrNop(l) }
}

// WithCacheSize sets how many computed rows are kept. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Segment) { s.cache = utils.NewLRU[int, map[int]float64](n) }
}

// WithTimeout bounds each backend read made on behalf of At, RowView and ColumnView.
func WithTimeout(d time.Duration) Option {
	return func(s *Segment) { s.timeout = d }
}

// New builds the segment for cfg with rows rows. Multinomial and text fields load their
// vocabulary now; later changes to the index do not add columns until the segment is
// rebuilt.
func New(ctx context.Context, cfg config.FieldConfig, rows int, deps Deps, opts ...Option) (*Segment, error) {
	if rows < 0 {
		return nil, fmt.Errorf("%w: field %q has %d rows", composite.ErrOutOfRange, cfg.Name, rows)
	}
	if deps.Entities == nil {
		return nil, fmt.Errorf("field %q: entity loader is required", cfg.Name)
	}
	s := &Segment{
		cfg:     cfg,
		rows:    rows,
		deps:    deps,
		cache:   utils.NewLRU[int, map[int]float64](1024),
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch cfg.Type {
	case config.KindBoolean, config.KindNumerical:
	case config.KindMultinomial, config.KindText:
		if deps.Retriever == nil {
			return nil, fmt.Errorf("field %q: %s fields need a retriever", cfg.Name, cfg.Type)
		}
		terms, err := deps.Retriever.Vocabulary(cfg.Name, cfg.TopTerms)
		if err != nil {
			return nil, fmt.Errorf("failed to load vocabulary of %q: %w", cfg.Name, err)
		}
		s.terms = terms
		s.columns = make(map[string]int, len(terms))
		for i, t := range terms {
			s.columns[t.Term] = i
		}
	case config.KindEmbedding:
		if deps.Vectors == nil {
			return nil, fmt.Errorf("field %q: embedding fields need a vector index", cfg.Name)
		}
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", cfg.Name, cfg.Type)
	}

	s.logger.Debug("field segment ready",
		zap.String("field", cfg.Name),
		zap.String("type", cfg.Type),
		zap.Int("rows", rows),
		zap.Int("cols", s.Cols()))
	return s, nil
}

// Name returns the field name.
func (s *Segment) Name() string { return s.cfg.Name }

// Kind returns the field type.
func (s *Segment) Kind() string { return s.cfg.Type }

// Rows returns the row capacity.
func (s *Segment) Rows() int { return s.rows }

// Cols returns the number of columns of the field.
func (s *Segment) Cols() int {
	switch s.cfg.Type {
	case config.KindMultinomial, config.KindText:
		return len(s.terms)
	case config.KindEmbedding:
		return s.deps.Vectors.Dimensions()
	default:
		return 1
	}
}

// Labels returns a label for each column: the field name for single-column fields,
// "field:term" for multinomial and text fields and "field#i" for embedding dimensions.
func (s *Segment) Labels() []string {
	labels := make([]string, s.Cols())
	for c := range labels {
		labels[c] = s.label(c)
	}
	return labels
}

func (s *Segment) label(c int) string {
	switch s.cfg.Type {
	case config.KindMultinomial, config.KindText:
		return s.cfg.Name + ":" + s.terms[c].Term
	case config.KindEmbedding:
		return s.cfg.Name + "#" + strconv.Itoa(c)
	default:
		return s.cfg.Name
	}
}

// Term returns the term behind column c of a multinomial or text field, or "" for
// other kinds.
func (s *Segment) Term(c int) string {
	if c < 0 || c >= len(s.terms) {
		return ""
	}
	return s.terms[c].Term
}

// Invalidate drops the cached row of id. Call it when the entity changes.
func (s *Segment) Invalidate(id int) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen++
	s.cache.Remove(id)
}

// InvalidateAll drops every cached row.
func (s *Segment) InvalidateAll() {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen++
	s.cache.Purge()
}

func (s *Segment) generation() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen
}

func (s *Segment) checkRow(row int) error {
	if row < 0 || row >= s.rows {
		return fmt.Errorf("%w: row %d not in [0, %d)", composite.ErrOutOfRange, row, s.rows)
	}
	return nil
}

func (s *Segment) checkCol(col int) error {
	if n := s.Cols(); col < 0 || col >= n {
		return fmt.Errorf("%w: column %d not in [0, %d) of field %q", composite.ErrOutOfRange, col, n, s.cfg.Name)
	}
	return nil
}

func (s *Segment) readContext() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), s.timeout)
}

// row returns the non-zero cells of row id, computing and caching them on a miss.
func (s *Segment) row(id int) (map[int]float64, error) {
	if cells, ok := s.cache.Get(id); ok {
		return cells, nil
	}
	ctx, cancel := s.readContext()
	defer cancel()

	gen := s.generation()
	cells, err := s.compute(ctx, id)
	if err != nil {
		return nil, err
	}
	s.genMu.Lock()
	if s.gen == gen {
		s.cache.Set(id, cells)
	}
	s.genMu.Unlock()
	return cells, nil
}

func (s *Segment) compute(ctx context.Context, id int) (map[int]float64, error) {
	cells := make(map[int]float64)

	if s.cfg.Type == config.KindEmbedding {
		vec, ok := s.deps.Vectors.Get(id)
		if !ok {
			return cells, nil
		}
		for i, x := range vec {
			if x != 0 {
				cells[i] = float64(x)
			}
		}
		return cells, nil
	}

	e, err := s.deps.Entities.GetEntity(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return cells, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load entity %d for field %q: %w", composite.ErrRetrieval, id, s.cfg.Name, err)
	}
	raw, ok := e.Attributes[s.cfg.Source]
	if !ok || raw == nil {
		return cells, nil
	}

	switch s.cfg.Type {
	case config.KindBoolean:
		if truthy(raw) {
			cells[0] = 1
		}
	case config.KindNumerical:
		x, ok := numeric(raw)
		if !ok {
			s.logger.Debug("non-numeric value ignored",
				zap.String("field", s.cfg.Name), zap.Int("id", id), zap.Any("value", raw))
			break
		}
		if x != 0 {
			cells[0] = x
		}
	case config.KindMultinomial:
		for _, v := range values(raw) {
			if c, ok := s.columns[v]; ok {
				cells[c] = 1
			}
		}
	case config.KindText:
		for term, tf := range s.deps.Retriever.TermCounts(text(raw)) {
			c, ok := s.columns[term]
			if !ok || s.terms[c].Count == 0 {
				continue
			}
			cells[c] = float64(tf) / float64(s.terms[c].Count)
		}
	}
	return cells, nil
}

// At returns the value at (row, col).
func (s *Segment) At(row, col int) (float64, error) {
	if err := s.checkRow(row); err != nil {
		return 0, err
	}
	if err := s.checkCol(col); err != nil {
		return 0, err
	}
	cells, err := s.row(row)
	if err != nil {
		return 0, err
	}
	return cells[col], nil
}

// Set always fails: field segments are derived from entity content.
func (s *Segment) Set(row, col int, v float64) error {
	return fmt.Errorf("%w: field %q is read-only", composite.ErrUnsupported, s.cfg.Name)
}

// AssignRow always fails.
func (s *Segment) AssignRow(row int, v composite.Vector) error {
	return fmt.Errorf("%w: field %q is read-only", composite.ErrUnsupported, s.cfg.Name)
}

// AssignColumn always fails.
func (s *Segment) AssignColumn(col int, v composite.Vector) error {
	return fmt.Errorf("%w: field %q is read-only", composite.ErrUnsupported, s.cfg.Name)
}

// RowView returns a read-only snapshot of row row.
func (s *Segment) RowView(row int) (composite.Vector, error) {
	if err := s.checkRow(row); err != nil {
		return nil, err
	}
	cells, err := s.row(row)
	if err != nil {
		return nil, err
	}
	return &snapshot{name: s.cfg.Name, size: s.Cols(), data: cells}, nil
}

// ColumnView returns a read-only snapshot of column col. Only entities the index
// reports as holding the column's value are visited.
func (s *Segment) ColumnView(col int) (composite.Vector, error) {
	if err := s.checkCol(col); err != nil {
		return nil, err
	}
	ids, err := s.candidates(col)
	if err != nil {
		return nil, err
	}
	data := make(map[int]float64)
	for _, id := range ids {
		if id < 0 || id >= s.rows {
			continue
		}
		cells, err := s.row(id)
		if err != nil {
			return nil, err
		}
		if x := cells[col]; x != 0 {
			data[id] = x
		}
	}
	return &snapshot{name: s.cfg.Name, size: s.rows, data: data}, nil
}

func (s *Segment) candidates(col int) ([]int, error) {
	if s.cfg.Type == config.KindEmbedding {
		return s.deps.Vectors.IDs(), nil
	}
	if s.deps.Retriever == nil {
		return nil, fmt.Errorf("%w: column view of %q needs a retriever", composite.ErrUnsupported, s.cfg.Name)
	}

	var term string
	switch s.cfg.Type {
	case config.KindBoolean:
		term = "true"
	case config.KindMultinomial, config.KindText:
		term = s.terms[col].Term
	}
	ctx, cancel := s.readContext()
	defer cancel()

	bm, err := s.deps.Retriever.Matching(ctx, s.cfg.Name, term, s.rows)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids, nil
}

// Like returns an empty in-memory segment of the given shape.
func (s *Segment) Like(rows, cols int) (composite.Segment, error) {
	return sparse.NewMatrix(rows, cols)
}
