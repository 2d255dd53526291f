// Package manifest owns queries/<slug>/manifest.json. It is the only writer
// of that key; sub-pipelines publish VideoRecord updates through Upsert.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
	"github.com/yungbote/vidscribe-backend/internal/naming"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/lock"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

const (
	lockTTL      = 30 * time.Second
	lockWait     = 10 * time.Second
	upsertTries  = 3
	retryBackoff = 200 * time.Millisecond
)

// Partial is one upsert payload: any subset of manifest fields. Video entries
// merge by object key; Combined shallow-merges; Query/Slug overwrite when set.
type Partial struct {
	Query    string
	Slug     string
	Videos   []types.VideoRecord
	Combined *types.CombinedSummary
}

type Store struct {
	log    *logger.Logger
	bucket bucket.Service
	locker lock.Locker
}

func NewStore(log *logger.Logger, b bucket.Service, l lock.Locker) *Store {
	return &Store{log: log.With("service", "ManifestStore"), bucket: b, locker: l}
}

// Get reads the manifest for slug, returning an empty manifest when none exists.
func (s *Store) Get(ctx context.Context, slug string) (types.QueryManifest, error) {
	var m types.QueryManifest
	err := s.bucket.GetJSON(ctx, naming.ManifestKey(slug), &m)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return types.QueryManifest{Slug: slug}, nil
	}
	if err != nil {
		return types.QueryManifest{}, err
	}
	if m.Slug == "" {
		m.Slug = slug
	}
	return m, nil
}

// Upsert merges partial into the stored manifest under the per-slug advisory
// lock. Lock contention is retried with jitter before surfacing ErrConflictLocked.
func (s *Store) Upsert(ctx context.Context, slug string, partial Partial) error {
	var lastErr error
	for attempt := 1; attempt <= upsertTries; attempt++ {
		lastErr = s.upsertOnce(ctx, slug, partial)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, pkgerrors.ErrConflictLocked) {
			return lastErr
		}
		sleep := retryBackoff + time.Duration(rand.Int63n(int64(retryBackoff)))
		s.log.Warn("Manifest lock contended; retrying", "slug", slug, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return fmt.Errorf("manifest: upsert %s: %w", slug, lastErr)
}

func (s *Store) upsertOnce(ctx context.Context, slug string, partial Partial) error {
	release, err := s.locker.Acquire(ctx, "manifest:"+slug, lockTTL, lockWait)
	if err != nil {
		return err
	}
	defer release()

	current, err := s.Get(ctx, slug)
	if err != nil {
		return err
	}

	merged := merge(current, partial)
	merged.Slug = slug
	return s.bucket.PutJSON(ctx, naming.ManifestKey(slug), merged)
}

func merge(current types.QueryManifest, partial Partial) types.QueryManifest {
	if partial.Query != "" {
		current.Query = partial.Query
	}
	if partial.Slug != "" {
		current.Slug = partial.Slug
	}
	for _, v := range partial.Videos {
		current.Videos = upsertVideo(current.Videos, v)
	}
	if partial.Combined != nil {
		current.Combined = mergeCombined(current.Combined, *partial.Combined)
	}
	return current
}

// upsertVideo merges by object key: set fields of the partial override, unset
// fields keep the stored value, unknown keys are appended.
func upsertVideo(videos []types.VideoRecord, v types.VideoRecord) []types.VideoRecord {
	if v.ObjectKey == "" && v.URL == "" {
		return videos
	}
	for i := range videos {
		match := (v.ObjectKey != "" && videos[i].ObjectKey == v.ObjectKey) ||
			(v.ObjectKey == "" && videos[i].URL == v.URL)
		if !match {
			continue
		}
		videos[i] = mergeVideo(videos[i], v)
		return videos
	}
	return append(videos, v)
}

func mergeVideo(base, over types.VideoRecord) types.VideoRecord {
	if over.URL != "" {
		base.URL = over.URL
	}
	if over.ObjectKey != "" {
		base.ObjectKey = over.ObjectKey
	}
	if over.TranscriptKey != "" {
		base.TranscriptKey = over.TranscriptKey
	}
	if over.ThumbnailKey != "" {
		base.ThumbnailKey = over.ThumbnailKey
	}
	if over.Status != "" {
		base.Status = over.Status
	}
	if over.SearchQuery != "" {
		base.SearchQuery = over.SearchQuery
	}
	if over.Error != "" {
		base.Error = over.Error
	}
	return base
}

func mergeCombined(base *types.CombinedSummary, over types.CombinedSummary) *types.CombinedSummary {
	if base == nil {
		out := over
		return &out
	}
	merged := *base
	if over.Status != "" {
		merged.Status = over.Status
	}
	if over.OutputKey != "" {
		merged.OutputKey = over.OutputKey
	}
	if over.TranscriptionKey != "" {
		merged.TranscriptionKey = over.TranscriptionKey
	}
	if over.KeywordsKey != "" {
		merged.KeywordsKey = over.KeywordsKey
	}
	if over.SentenceKey != "" {
		merged.SentenceKey = over.SentenceKey
	}
	if over.VideoKey != "" {
		merged.VideoKey = over.VideoKey
	}
	if over.VideoURL != "" {
		merged.VideoURL = over.VideoURL
	}
	// A status change always carries its count, including the reset to zero
	// when a rebuild lands on no transcripts.
	if over.Status != "" || over.Count != 0 {
		merged.Count = over.Count
	}
	if over.Keywords != nil {
		merged.Keywords = over.Keywords
	}
	if over.Sentence != "" {
		merged.Sentence = over.Sentence
	}
	if over.UpdatedAtUTC != "" {
		merged.UpdatedAtUTC = over.UpdatedAtUTC
	}
	return &merged
}
