package retrieval

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/models"
)

const entityType = "entity"

// BleveIndex implements Retriever using Bleve. Each configured field is mapped by kind;
// embedding fields are not indexed.
type BleveIndex struct {
	index   bleve.Index
	fields  map[string]config.FieldConfig
	spatial string
	logger  *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is reused;
// remove the directory after changing field declarations to force a rebuild.
func NewBleveIndex(path string, fields []config.FieldConfig, spatialField string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{
		fields:  make(map[string]config.FieldConfig, len(fields)),
		spatial: spatialField,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, f := range fields {
		b.fields[f.Name] = f
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, buildMapping(fields, spatialField))
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// NewMemoryIndex returns an index that lives only in memory.
func NewMemoryIndex(fields []config.FieldConfig, spatialField string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{
		fields:  make(map[string]config.FieldConfig, len(fields)),
		spatial: spatialField,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, f := range fields {
		b.fields[f.Name] = f
	}
	index, err := bleve.NewMemOnly(buildMapping(fields, spatialField))
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

func buildMapping(fields []config.FieldConfig, spatialField string) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	for _, f := range fields {
		switch f.Type {
		case config.KindBoolean:
			doc.AddFieldMappingsAt(f.Name, bleve.NewBooleanFieldMapping())
		case config.KindNumerical:
			doc.AddFieldMappingsAt(f.Name, bleve.NewNumericFieldMapping())
		case config.KindMultinomial:
			doc.AddFieldMappingsAt(f.Name, bleve.NewKeywordFieldMapping())
		case config.KindText:
			// Standard analyzer: lowercase and tokenize, no stemming, so column labels
			// read as the words that occur in the text.
			text := bleve.NewTextFieldMapping()
			text.Analyzer = standard.Name
			doc.AddFieldMappingsAt(f.Name, text)
		}
	}
	if spatialField != "" {
		doc.AddFieldMappingsAt(spatialField, bleve.NewGeoPointFieldMapping())
	}

	im.AddDocumentMapping(entityType, doc)
	im.DefaultType = entityType
	im.DefaultMapping = doc
	return im
}

// Index indexes the configured attributes of e under its id.
func (b *BleveIndex) Index(ctx context.Context, e *models.Entity) error {
	doc := make(map[string]interface{}, len(b.fields)+1)
	for name, f := range b.fields {
		if f.Type == config.KindEmbedding {
			continue
		}
		if v, ok := e.Attributes[f.Source]; ok && v != nil {
			doc[name] = v
		}
	}
	if b.spatial != "" {
		if p, ok := GeoPointOf(e.Attributes[b.spatial]); ok {
			doc[b.spatial] = map[string]interface{}{"lat": p.Lat, "lon": p.Lon}
		}
	}
	if err := b.index.Index(docID(e.ID), doc); err != nil {
		return fmt.Errorf("failed to index entity %d: %w", e.ID, err)
	}
	return nil
}

// Delete removes an entity from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int) error {
	return b.index.Delete(docID(id))
}

// Candidates runs q and returns the matching ids within q's offset and limit.
func (b *BleveIndex) Candidates(ctx context.Context, q *models.CandidateQuery) (*roaring.Bitmap, error) {
	var query blevequery.Query
	if q.Query != "" {
		query = bleve.NewQueryStringQuery(q.Query)
	} else {
		kq, err := b.keywordQuery(q.Field, q.Keyword)
		if err != nil {
			return nil, err
		}
		query = kq
		if q.Near != nil {
			if b.spatial == "" {
				return nil, fmt.Errorf("%w: no spatial field configured", composite.ErrUnsupported)
			}
			gq := bleve.NewGeoDistanceQuery(q.Near.Lon, q.Near.Lat, formatKm(q.RadiusKm))
			gq.SetField(b.spatial)
			query = bleve.NewConjunctionQuery(kq, gq)
		}
	}

	req := bleve.NewSearchRequestOptions(query, q.Limit, q.Offset, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: candidate search failed: %w", composite.ErrRetrieval, err)
	}
	b.logger.Debug("candidate search",
		zap.String("field", q.Field),
		zap.String("keyword", q.Keyword),
		zap.String("query", q.Query),
		zap.Uint64("total", res.Total),
		zap.Int("hits", len(res.Hits)))
	return hitIDs(res)
}

// Matching returns up to limit ids whose field holds term.
func (b *BleveIndex) Matching(ctx context.Context, field, term string, limit int) (*roaring.Bitmap, error) {
	f, ok := b.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", models.ErrInvalid, field)
	}
	var query blevequery.Query
	if f.Type == config.KindNumerical {
		lo, hi := -math.MaxFloat64, math.MaxFloat64
		incl := true
		nq := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, &incl, &incl)
		nq.SetField(field)
		query = nq
	} else {
		kq, err := b.keywordQuery(field, term)
		if err != nil {
			return nil, err
		}
		query = kq
	}

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s=%q failed: %w", composite.ErrRetrieval, field, term, err)
	}
	return hitIDs(res)
}

// keywordQuery matches keyword against field according to the field kind.
func (b *BleveIndex) keywordQuery(field, keyword string) (blevequery.Query, error) {
	f, ok := b.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", models.ErrInvalid, field)
	}
	switch f.Type {
	case config.KindBoolean:
		v, err := strconv.ParseBool(keyword)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects a boolean: %w", models.ErrInvalid, field, err)
		}
		q := bleve.NewBoolFieldQuery(v)
		q.SetField(field)
		return q, nil
	case config.KindNumerical:
		v, err := strconv.ParseFloat(keyword, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q expects a number: %w", models.ErrInvalid, field, err)
		}
		incl := true
		q := bleve.NewNumericRangeInclusiveQuery(&v, &v, &incl, &incl)
		q.SetField(field)
		return q, nil
	case config.KindMultinomial:
		q := bleve.NewTermQuery(keyword)
		q.SetField(field)
		return q, nil
	case config.KindText:
		q := bleve.NewMatchQuery(keyword)
		q.SetField(field)
		return q, nil
	default:
		return nil, fmt.Errorf("%w: keyword search on %s field %q", composite.ErrUnsupported, f.Type, field)
	}
}

// MoreLikeThis ranks entities sharing any of terms on field, excluding id itself.
func (b *BleveIndex) MoreLikeThis(ctx context.Context, field string, id int, terms []string, limit int) ([]*models.ScoredEntity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	shoulds := make([]blevequery.Query, 0, len(terms))
	for _, t := range terms {
		tq := bleve.NewTermQuery(t)
		tq.SetField(field)
		shoulds = append(shoulds, tq)
	}
	query := blevequery.NewBooleanQuery(
		[]blevequery.Query{bleve.NewDisjunctionQuery(shoulds...)},
		nil,
		[]blevequery.Query{bleve.NewDocIDQuery([]string{docID(id)})},
	)

	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: more-like-this on %s failed: %w", composite.ErrRetrieval, field, err)
	}

	out := make([]*models.ScoredEntity, 0, len(res.Hits))
	for i, hit := range res.Hits {
		n, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		out = append(out, &models.ScoredEntity{ID: n, Score: hit.Score, Rank: i + 1})
	}
	return out, nil
}

// Vocabulary returns the n terms of field held by the most documents, ties broken by
// term. These become the field's columns.
func (b *BleveIndex) Vocabulary(field string, n int) ([]TermCount, error) {
	dict, err := b.index.FieldDict(field)
	if err != nil {
		return nil, fmt.Errorf("%w: field dictionary %s: %w", composite.ErrRetrieval, field, err)
	}
	defer dict.Close()

	var terms []TermCount
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: field dictionary %s: %w", composite.ErrRetrieval, field, err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, TermCount{Term: entry.Term, Count: int(entry.Count)})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if n >= 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms, nil
}

// DocFrequency returns the number of documents whose field holds term.
func (b *BleveIndex) DocFrequency(ctx context.Context, field, term string) (int, error) {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("%w: document frequency %s=%q: %w", composite.ErrRetrieval, field, term, err)
	}
	return int(res.Total), nil
}

// TermCounts analyzes text the way text fields are indexed and counts each term.
func (b *BleveIndex) TermCounts(text string) map[string]int {
	counts := make(map[string]int)
	analyzer := b.index.Mapping().AnalyzerNamed(standard.Name)
	if analyzer == nil {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			counts[w]++
		}
		return counts
	}
	for _, tok := range analyzer.Analyze([]byte(text)) {
		counts[string(tok.Term)]++
	}
	return counts
}

// DocCount returns the number of indexed entities.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(id int) string { return strconv.Itoa(id) }

func hitIDs(res *bleve.SearchResult) (*roaring.Bitmap, error) {
	ids := roaring.New()
	for _, hit := range res.Hits {
		n, err := strconv.Atoi(hit.ID)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: malformed document id %q", composite.ErrRetrieval, hit.ID)
		}
		ids.Add(uint32(n))
	}
	return ids, nil
}

func formatKm(km float64) string {
	return strconv.FormatFloat(km, 'f', -1, 64) + "km"
}
