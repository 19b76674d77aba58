// Package persist owns the local state file: atomic writes, rotating
// backups, corruption recovery and one-shot legacy migration. The local disk
// is the primary source of truth between restarts.
//
// Filesystem failures are logged and swallowed here; between two persisted
// writes the in-memory document is the only guaranteed-current copy. The one
// error callers ever see is common.ErrEmptyOverwrite, the anti-loss guard.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/filex"
	"github.com/dueskeeper/dueskeeper/internal/logging"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// DefaultMaxBackups is how many rotated backup files are kept, newest first.
const DefaultMaxBackups = 40

// Engine reads and writes the primary state file.
type Engine struct {
	path        string
	legacyPaths []string
	maxBackups  int
	logger      logging.Logger
}

// NewEngine returns an engine for the given primary path. legacyPaths are
// older file locations consulted once at boot by MigrateLegacy.
func NewEngine(path string, legacyPaths []string, logger logging.Logger) *Engine {
	return &Engine{
		path:        path,
		legacyPaths: legacyPaths,
		maxBackups:  DefaultMaxBackups,
		logger:      logger.With("component", "persist"),
	}
}

// Path returns the primary state file path.
func (e *Engine) Path() string {
	return e.path
}

// Write persists doc as the new primary file content.
//
// The current primary (if any) is first copied into a timestamped backup,
// then the new content is written to a temp file in the same directory and
// renamed over the primary, so the primary is always either fully-old or
// fully-new. If the on-disk document is non-empty and doc is empty the write
// is refused with common.ErrEmptyOverwrite and the file is left untouched.
// All other filesystem errors are logged and suppressed.
func (e *Engine) Write(ctx context.Context, doc *state.Document, reason string) error {
	onDisk, err := e.readDocument(e.path)
	if err == nil && onDisk.Score() > 0 && doc.Score() == 0 {
		e.logger.Warn(ctx, "refusing to overwrite non-empty state with empty document",
			"reason", reason, "on_disk_score", onDisk.Score())
		return common.ErrEmptyOverwrite
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		e.logger.Error(ctx, "state marshal failed", "reason", reason, "error", err)
		return nil
	}

	if err := filex.EnsureDir(filepath.Dir(e.path)); err != nil {
		e.logger.Error(ctx, "state dir creation failed", "error", err)
		return nil
	}

	e.backupPrimary(ctx, reason)

	if err := e.atomicWrite(data); err != nil {
		e.logger.Error(ctx, "state write failed", "reason", reason, "error", err)
		return nil
	}

	e.logger.Debug(ctx, "state written", "reason", reason, "score", doc.Score())
	return nil
}

// Load reads the primary file, recovering from backups when it is corrupt
// and initializing an empty document when it is genuinely absent. Load never
// fails; it always returns a normalized document.
func (e *Engine) Load(ctx context.Context) *state.Document {
	data, err := os.ReadFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		e.logger.Info(ctx, "no state file, initializing empty document", "path", e.path)
		doc := state.New()
		_ = e.Write(ctx, doc, "init")
		return doc
	}
	if err != nil {
		// Unreadable is not the same as absent: never overwrite it.
		e.logger.Error(ctx, "state file unreadable", "path", e.path, "error", err)
		if doc := e.recoverFromBackups(ctx, false); doc != nil {
			return doc
		}
		return state.New()
	}

	doc, err := decodeDocument(data)
	if err == nil {
		return doc
	}

	e.logger.Error(ctx, "state file corrupt, quarantining", "path", e.path, "error", err)
	e.quarantinePrimary(ctx)

	if doc := e.recoverFromBackups(ctx, true); doc != nil {
		return doc
	}

	e.logger.Warn(ctx, "no recoverable backup, initializing empty document")
	doc = state.New()
	_ = e.Write(ctx, doc, "init")
	return doc
}

// MigrateLegacy is a one-shot boot step: it scans the configured legacy
// paths and adopts richer content into the primary file.
//
// If no primary exists, the best-scoring legacy document becomes the
// primary. If both exist, the legacy document is merged with the current one
// and the merge is adopted only when it outscores the current primary.
func (e *Engine) MigrateLegacy(ctx context.Context) {
	legacy := e.bestLegacy(ctx)
	if legacy == nil {
		return
	}

	cur, err := e.readDocument(e.path)
	if err != nil {
		e.logger.Info(ctx, "adopting legacy state file", "score", legacy.Score())
		_ = e.Write(ctx, legacy, "legacy-migration")
		return
	}

	merged := state.Merge(cur, legacy)
	if merged.Score() > cur.Score() {
		e.logger.Info(ctx, "adopting merged legacy state",
			"current_score", cur.Score(), "merged_score", merged.Score())
		_ = e.Write(ctx, merged, "legacy-migration")
	}
}

func (e *Engine) bestLegacy(ctx context.Context) *state.Document {
	var best *state.Document
	for _, p := range e.legacyPaths {
		doc, err := e.readDocument(p)
		if err != nil {
			continue
		}
		if doc.Score() == 0 {
			continue
		}
		if best == nil || doc.Score() > best.Score() {
			best = doc
		}
		e.logger.Debug(ctx, "legacy candidate found", "path", p, "score", doc.Score())
	}
	return best
}

func (e *Engine) readDocument(path string) (*state.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (*state.Document, error) {
	doc := &state.Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

func (e *Engine) atomicWrite(data []byte) error {
	dir := filepath.Dir(e.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(e.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, e.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// backupPrimary copies the current primary (if present) into a timestamped
// backup and prunes old backups beyond the cap. Failures are logged only.
func (e *Engine) backupPrimary(ctx context.Context, reason string) {
	if _, err := os.Stat(e.path); err != nil {
		return
	}

	dst := e.backupName(reason)
	if err := filex.CopyFile(e.path, dst); err != nil {
		e.logger.Error(ctx, "backup copy failed", "error", err)
		return
	}
	e.pruneBackups(ctx)
}

func (e *Engine) quarantinePrimary(ctx context.Context) {
	// Keep a backup copy, then move the corrupt file aside so recovery can
	// re-create the primary.
	if err := filex.CopyFile(e.path, e.backupName("corrupt")); err != nil {
		e.logger.Error(ctx, "corrupt backup copy failed", "error", err)
	}
	aside := e.path + ".corrupt-" + timestampToken()
	if err := os.Rename(e.path, aside); err != nil {
		e.logger.Error(ctx, "quarantine rename failed", "error", err)
	}
}

// recoverFromBackups scans backups newest-first and returns the first one
// that parses. When persistRecovered is set, the recovered content becomes
// the new primary immediately.
func (e *Engine) recoverFromBackups(ctx context.Context, persistRecovered bool) *state.Document {
	for _, b := range e.backupsNewestFirst(ctx) {
		doc, err := e.readDocument(b)
		if err != nil {
			e.logger.Warn(ctx, "backup unreadable, skipping", "path", b, "error", err)
			continue
		}
		e.logger.Info(ctx, "state recovered from backup", "path", b, "score", doc.Score())
		if persistRecovered {
			_ = e.Write(ctx, doc, "recovered")
		}
		return doc
	}
	return nil
}

func (e *Engine) pruneBackups(ctx context.Context) {
	backups := e.backupsNewestFirst(ctx)
	for _, b := range backups[min(len(backups), e.maxBackups):] {
		if err := os.Remove(b); err != nil {
			e.logger.Warn(ctx, "backup prune failed", "path", b, "error", err)
		}
	}
}

func (e *Engine) backupsNewestFirst(ctx context.Context) []string {
	pattern := strings.TrimSuffix(e.path, ".json") + ".backup-*.json"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		e.logger.Error(ctx, "backup scan failed", "pattern", pattern, "error", err)
		return nil
	}

	type entry struct {
		path  string
		mtime time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, mtime: fi.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].mtime.Equal(entries[j].mtime) {
			return entries[i].mtime.After(entries[j].mtime)
		}
		return entries[i].path > entries[j].path
	})

	out := make([]string, len(entries))
	for i, en := range entries {
		out[i] = en.path
	}
	return out
}

func (e *Engine) backupName(reason string) string {
	base := strings.TrimSuffix(e.path, ".json")
	return fmt.Sprintf("%s.backup-%s-%s.json", base, timestampToken(), sanitizeReason(reason))
}

// timestampToken renders an ISO8601 timestamp with colons and dots replaced
// by dashes so it is safe in a file name.
func timestampToken() string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

func sanitizeReason(reason string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(reason) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "write"
	}
	return b.String()
}
