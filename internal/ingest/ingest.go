// Package ingest turns files into entities. Record files (.json, .yaml, .yml, .xlsx)
// hold one entity per record; document files (.txt, .md, .pdf, .docx, .odt, .rtf, .pptx,
// .odp, .ods) become one entity each with title, body, path and format attributes.
//
// Every entity is bound to a source key derived from its file, so re-ingesting a file
// updates the same rows and removing it deletes them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/fileid"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/storage"
	"github.com/hyperjump/contentdb/pkg/utils"
)

// Sink receives the ingested entities.
type Sink interface {
	SetContent(ctx context.Context, in *models.EntityInput) (*models.Entity, error)
	Delete(ctx context.Context, id int) error
	Store() storage.Storage
	MaxRows() int
}

// Ingester reads files into a Sink.
type Ingester struct {
	sink       Sink
	extensions []string
	idField    string
	logger     *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = utils.OrNop(l) }
}

// WithIDField names the record attribute that identifies a record within its file.
// Records without it are identified by their position.
func WithIDField(name string) Option {
	return func(in *Ingester) { in.idField = name }
}

// New returns an ingester for files with one of extensions. An empty list allows
// every supported format.
func New(sink Sink, extensions []string, opts ...Option) *Ingester {
	in := &Ingester{sink: sink, extensions: extensions, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

var recordFormats = map[string]bool{".json": true, ".yaml": true, ".yml": true, ".xlsx": true}

var documentFormats = map[string]bool{
	".txt": true, ".md": true, ".pdf": true, ".docx": true, ".odt": true, ".rtf": true,
	".pptx": true, ".odp": true, ".ods": true,
}

// Accepts reports whether path has an allowed and supported extension.
func (in *Ingester) Accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !recordFormats[ext] && !documentFormats[ext] {
		return false
	}
	if len(in.extensions) == 0 {
		return true
	}
	for _, a := range in.extensions {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == strings.TrimPrefix(ext, ".") {
			return true
		}
	}
	return false
}

// IngestFile reads path and stores its entities. An unchanged file is skipped. It
// returns the number of entities written.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	if !in.Accepts(abs) {
		return 0, fmt.Errorf("extension %q not accepted", filepath.Ext(abs))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", abs)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	in.logger.Debug("ingesting file", zap.String("path", abs))
	ext := strings.ToLower(filepath.Ext(abs))
	if recordFormats[ext] {
		return in.ingestRecords(ctx, abs, ext, content)
	}
	return in.ingestDocument(ctx, abs, ext, content)
}

func (in *Ingester) ingestDocument(ctx context.Context, path, ext string, content []byte) (int, error) {
	store := in.sink.Store()
	key := fileid.SourceKey(path)
	hash := fileid.Fingerprint(content)

	src, err := store.ResolveSource(ctx, key, in.sink.MaxRows())
	if err != nil {
		return 0, fmt.Errorf("failed to resolve source: %w", err)
	}
	if src.Hash == hash {
		if _, err := store.GetEntity(ctx, src.EntityID); err == nil {
			in.logger.Debug("skipping unchanged file", zap.String("path", path))
			return 0, nil
		}
	}

	text, err := documentText(content, ext)
	if err != nil {
		return 0, err
	}
	input := &models.EntityInput{
		ID:     src.EntityID,
		Source: key,
		Attributes: map[string]interface{}{
			"title":  filepath.Base(path),
			"body":   text,
			"path":   path,
			"format": strings.TrimPrefix(ext, "."),
		},
	}
	if _, err := in.sink.SetContent(ctx, input); err != nil {
		return 0, err
	}
	if err := store.SetSourceHash(ctx, key, hash); err != nil {
		return 0, fmt.Errorf("failed to record fingerprint: %w", err)
	}
	in.logger.Debug("file ingested", zap.String("path", path), zap.Int("id", src.EntityID))
	return 1, nil
}

func (in *Ingester) ingestRecords(ctx context.Context, path, ext string, content []byte) (int, error) {
	store := in.sink.Store()
	prefix := fileid.SourceKey(path) + "#"
	hash := fileid.Fingerprint(content)

	existing, err := store.SourcesWithPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list sources: %w", err)
	}
	if unchanged(existing, hash) {
		in.logger.Debug("skipping unchanged file", zap.String("path", path))
		return 0, nil
	}

	records, err := parseRecords(content, ext)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	seen := make(map[string]bool, len(records))
	n := 0
	for i, rec := range records {
		if len(rec) == 0 {
			in.logger.Warn("skipping empty record", zap.String("path", path), zap.Int("record", i))
			continue
		}
		key := prefix + in.recordKey(rec, i)
		if seen[key] {
			return n, fmt.Errorf("%s: duplicate record %q", path, key)
		}
		seen[key] = true

		src, err := store.ResolveSource(ctx, key, in.sink.MaxRows())
		if err != nil {
			return n, fmt.Errorf("failed to resolve source: %w", err)
		}
		input := &models.EntityInput{ID: src.EntityID, Source: key, Attributes: rec}
		if _, err := in.sink.SetContent(ctx, input); err != nil {
			return n, err
		}
		if err := store.SetSourceHash(ctx, key, hash); err != nil {
			return n, fmt.Errorf("failed to record fingerprint: %w", err)
		}
		n++
	}

	// Records that disappeared from the file.
	for _, old := range existing {
		if seen[old.Key] {
			continue
		}
		if err := in.forget(ctx, old.Key); err != nil {
			return n, err
		}
	}
	in.logger.Debug("records ingested", zap.String("path", path), zap.Int("records", n))
	return n, nil
}

func (in *Ingester) recordKey(rec Record, i int) string {
	if in.idField != "" {
		if v, ok := rec[in.idField]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return fmt.Sprint(i)
}

func unchanged(sources []*storage.Source, hash string) bool {
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if s.Hash != hash {
			return false
		}
	}
	return true
}

// RemoveFile deletes the entities ingested from path and returns how many there were.
func (in *Ingester) RemoveFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	key := fileid.SourceKey(abs)
	n := 0
	switch err := in.forget(ctx, key); {
	case err == nil:
		n++
	case !errors.Is(err, storage.ErrNotFound):
		return 0, err
	}

	records, err := in.sink.Store().SourcesWithPrefix(ctx, key+"#")
	if err != nil {
		return n, fmt.Errorf("failed to list sources: %w", err)
	}
	for _, s := range records {
		if err := in.forget(ctx, s.Key); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		in.logger.Debug("file removed", zap.String("path", abs), zap.Int("entities", n))
	}
	return n, nil
}

func (in *Ingester) forget(ctx context.Context, key string) error {
	src, err := in.sink.Store().ForgetSource(ctx, key)
	if err != nil {
		return err
	}
	if err := in.sink.Delete(ctx, src.EntityID); err != nil {
		return fmt.Errorf("failed to delete entity %d: %w", src.EntityID, err)
	}
	return nil
}

// IngestDirectory ingests every accepted regular file under dir, descending into
// subdirectories when recursive. It returns the number of entities written and stops
// at the first error.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, recursive bool) (int, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", abs)
	}

	total := 0
	err = filepath.WalkDir(abs, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != abs && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !in.Accepts(path) {
			return nil
		}
		// Follow symlinks, but only to regular files.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		n, err := in.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}
