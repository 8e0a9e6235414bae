// Package scanner discovers media files under the configured source
// directories. It runs once per process startup and is the only writer of new
// entries.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/spacesaver/internal/classifier"
	"github.com/jmylchreest/spacesaver/internal/fingerprint"
	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/store"
)

// maxDepth is the deepest directory level scanned, relative to each source
// directory (0 = the source directory itself).
const maxDepth = 3

// mediaExtensions is the fixed set of file extensions considered media.
var mediaExtensions = map[string]bool{
	".mkv": true,
	".mp4": true,
	".avi": true,
	".mov": true,
	".m4v": true,
	".ts":  true,
	".wmv": true,
}

// MetadataProber extracts ACTUAL metadata from a file on disk.
type MetadataProber interface {
	ActualMetadata(ctx context.Context, entryUUID, path string) *models.Metadata
}

// Result summarises one scan pass.
type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Scanner walks source directories and inserts newly discovered files.
type Scanner struct {
	store  *store.Store
	prober MetadataProber
	logger *slog.Logger

	// Injected for testability; default to the real implementations.
	hash     func(path string) (string, error)
	classify func(filename string) models.DeclaredMetadata
	clean    func(filename string) string
}

// New creates a scanner over the given store and prober.
func New(st *store.Store, prober MetadataProber, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		store:    st,
		prober:   prober,
		logger:   log,
		hash:     fingerprint.Compute,
		classify: classifier.Classify,
		clean:    classifier.CleanName,
	}
}

// Scan walks every source directory once, to a maximum relative depth of 3,
// and inserts each new media file as a PENDING entry. Files already known by
// (hash, path) are skipped; per-file IO failures are counted and do not abort
// the scan.
func (s *Scanner) Scan(ctx context.Context, sourceDirs []string) Result {
	s.logger.Info("startup_scan_started", slog.Any("source_dirs", sourceDirs))

	var result Result
	for _, dir := range sourceDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			s.logger.Warn("scan_dir_missing", slog.String("dir", dir))
			continue
		}
		s.scanDir(ctx, dir, &result)
	}

	s.logger.Info("startup_scan_completed",
		slog.Int("added", result.Added),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)
	return result
}

func (s *Scanner) scanDir(ctx context.Context, sourceDir string, result *Result) {
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scan_walk_error", slog.String("path", path), slog.String("error", err.Error()))
			result.Errors++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if relDepth(sourceDir, path) > maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if !mediaExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		s.scanFile(ctx, path, result)
		return nil
	})
	if err != nil {
		s.logger.Warn("scan_dir_error", slog.String("dir", sourceDir), slog.String("error", err.Error()))
	}
}

func (s *Scanner) scanFile(ctx context.Context, path string, result *Result) {
	hash, err := s.hash(path)
	if err != nil {
		s.logger.Warn("scan_file_error", slog.String("path", path), slog.String("error", err.Error()))
		result.Errors++
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Warn("scan_file_error", slog.String("path", path), slog.String("error", err.Error()))
		result.Errors++
		return
	}

	existing, err := s.store.GetEntryByHashAndPath(ctx, hash, path)
	if err != nil {
		s.logger.Warn("scan_file_error", slog.String("path", path), slog.String("error", err.Error()))
		result.Errors++
		return
	}
	if existing != nil {
		result.Skipped++
		return
	}

	filename := filepath.Base(path)
	declared := s.classify(filename)
	entry := models.NewEntry(s.clean(filename), hash, path, info.Size())

	metaDeclared := declared.ToMetadata(entry.UUID)
	metaActual := s.prober.ActualMetadata(ctx, entry.UUID, path)

	if err := s.store.InsertNewFile(ctx, entry, []*models.Metadata{metaDeclared, metaActual}); err != nil {
		s.logger.Warn("scan_file_error",
			slog.String("uuid", entry.UUID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	result.Added++
	s.logger.Info("file_discovered",
		slog.String("uuid", entry.UUID),
		slog.String("name", entry.Name),
		slog.Int64("size", entry.Size),
		slog.String("actual_codec", metaActual.Codec),
	)
}

// relDepth returns how many directory levels path sits below root.
func relDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}
