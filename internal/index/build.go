package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/gebo/internal/checksum"
	"github.com/starford/gebo/internal/models"
)

// Rebuild scans the whole vault and replaces the index with a freshly
// built graph. It is cancellable, and it is superseded — not queued — by
// any rebuild requested while it runs: only the newest result is swapped
// in. A single-file delta committed while the scan runs invalidates the
// scanned state, so the swap is refused and the vault is rescanned.
func (s *Store) Rebuild(ctx context.Context) error {
	gen := s.rebuildGen.Add(1)

	for {
		delta := s.deltaGen.Load()

		metas, err := s.store.List("")
		if err != nil {
			return fmt.Errorf("index: list vault: %w", err)
		}

		fresh := newState()

		// Register every note first so that resolution during the second
		// pass sees the complete corpus.
		for _, m := range metas {
			fresh.addRecord(models.NoteRecord{
				ID:       s.idForPath(m.Path),
				Path:     m.Path,
				Checksum: m.Checksum,
				ModTime:  m.UpdatedAt,
			})
		}

		for _, m := range metas {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("index: rebuild cancelled: %w", err)
			}
			data, readErr := s.store.Read(m.Path)
			if readErr != nil {
				s.log.Warn("index: rebuild read failed", slog.String("path", m.Path), slog.String("error", readErr.Error()))
				continue
			}
			id := s.idForPath(m.Path)
			h, _ := fresh.lookup(id)
			fresh.setOutgoing(h, s.parseAndResolve(fresh, id, data))
		}

		s.mu.Lock()
		if gen != s.rebuildGen.Load() {
			s.mu.Unlock()
			s.log.Debug("index: rebuild superseded", slog.Int64("generation", gen))
			return nil
		}
		if delta != s.deltaGen.Load() {
			s.mu.Unlock()
			s.log.Debug("index: rebuild raced a delta, rescanning", slog.Int64("generation", gen))
			continue
		}
		s.st = fresh
		snap := buildSnapshot(fresh)
		s.snap.Store(snap)
		s.mu.Unlock()

		s.log.Info("index: rebuild complete",
			slog.Int("notes", len(snap.Records)),
			slog.Int("placeholders", len(snap.Placeholders)))

		if s.cache != nil {
			fp := fingerprintMetas(metas)
			if err := s.cache.Save(snap, fp); err != nil {
				s.log.Warn("index: snapshot cache save failed", slog.String("error", err.Error()))
			}
		}
		return nil
	}
}

// LoadOrRebuild restores the cached snapshot when its corpus fingerprint
// still matches the vault, and falls back to a full rebuild otherwise.
// The cache is purely an optimization: any mismatch or load error means
// rebuild, never a failure.
func (s *Store) LoadOrRebuild(ctx context.Context) error {
	if s.cache == nil {
		return s.Rebuild(ctx)
	}

	metas, err := s.store.List("")
	if err != nil {
		return fmt.Errorf("index: list vault: %w", err)
	}
	fp := fingerprintMetas(metas)

	snap, err := s.cache.Load(fp)
	if err != nil {
		s.log.Warn("index: snapshot cache load failed", slog.String("error", err.Error()))
	}
	if snap == nil {
		return s.Rebuild(ctx)
	}

	st := stateFromSnapshot(snap)
	if err := checkInvariants(st); err != nil {
		s.log.Warn("index: cached snapshot inconsistent, rebuilding", slog.String("error", err.Error()))
		return s.Rebuild(ctx)
	}

	s.mu.Lock()
	s.st = st
	s.snap.Store(buildSnapshot(st))
	s.mu.Unlock()

	s.log.Info("index: restored from snapshot cache", slog.Int("notes", len(snap.Records)))
	return nil
}

func fingerprintMetas(metas []models.NoteMetadata) string {
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		sums[m.Path] = m.Checksum
	}
	return checksum.Fingerprint(sums)
}
