// Package combine aggregates the per-video transcripts of one query into the
// combined artifacts: transcription, keywords, key sentences, and the
// optional stitched highlight video.
package combine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/vidscribe-backend/internal/keywords"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/naming"
	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/platform/media"
	"github.com/yungbote/vidscribe-backend/internal/sentences"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

const (
	combinedKeywordCount = 50
	perVideoKeywordCount = 30
	sentenceVersion      = "v2"
)

// Builder produces the per-query combined artifacts.
type Builder struct {
	log      *logger.Logger
	bucket   bucket.Service
	manifest *manifest.Store
	engine   *keywords.Engine
	media    media.Tools

	fetchLimit   int
	videoEnabled bool
}

func NewBuilder(log *logger.Logger, b bucket.Service, m *manifest.Store, e *keywords.Engine, tools media.Tools) *Builder {
	return &Builder{
		log:          log.With("service", "CombinedBuilder"),
		bucket:       b,
		manifest:     m,
		engine:       e,
		media:        tools,
		fetchLimit:   envutil.Int("TRANSCRIPT_FETCH_CONCURRENCY", 4),
		videoEnabled: envutil.Bool("COMBINED_VIDEO_ENABLED", true),
	}
}

type loadedTranscript struct {
	ref        types.TranscriptRef
	transcript types.Transcript
}

// Build aggregates the transcripts of completedVideoKeys into the combined
// artifacts and records them in the manifest. Missing transcripts are
// skipped, never fatal.
func (b *Builder) Build(ctx context.Context, query string, completedVideoKeys []string) (*types.CombinedOutput, error) {
	slug := naming.Slug(query)

	loaded, err := b.loadTranscripts(ctx, completedVideoKeys)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		out := &types.CombinedOutput{
			Query:                query,
			Status:               "no-transcripts",
			Transcripts:          []types.TranscriptRef{},
			CombinedKeywords:     []types.Keyword{},
			KeySentences:         []types.KeySentence{},
			CombinedRebuiltAtUTC: time.Now().UTC().Format(time.RFC3339),
		}
		if err := b.writeArtifacts(ctx, slug, query, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	texts := make([]string, len(loaded))
	refs := make([]types.TranscriptRef, len(loaded))
	for i, lt := range loaded {
		texts[i] = lt.transcript.Text
		refs[i] = lt.ref
	}
	combinedText := strings.Join(texts, "\n\n---\n\n")

	combined, perVideo := b.extractKeywords(ctx, query, texts)
	final, replaceCount := keywords.ApplyCoverageCompensation(b.log, combined, texts, perVideo)
	final = keywords.FilterLowQuality(final)
	final = keywords.FilterByQueryLanguage(final, query)
	if len(final) == 0 {
		final = aggregatePerVideo(perVideo)
		final = keywords.FilterLowQuality(final)
		final = keywords.FilterByQueryLanguage(final, query)
	}
	if len(final) > keywords.TopK {
		final = final[:keywords.TopK]
	}

	terms := make([]string, len(final))
	for i, kw := range final {
		terms[i] = kw.Term
	}
	keySentences := sentences.ExtractKeySentenceItems(texts, terms, sentences.DefaultMaxSentences)
	for i := range keySentences {
		if idx := keySentences[i].SourceIndex; idx >= 0 && idx < len(refs) {
			keySentences[i].SourceVideoObject = refs[idx].VideoObject
		}
	}
	combinedSentence := sentences.ExtractCombinedSentence(texts, terms, sentences.DefaultMaxSentences)

	out := &types.CombinedOutput{
		Query:                   query,
		Status:                  "ok",
		Count:                   len(loaded),
		ReplaceCount:            replaceCount,
		Transcripts:             refs,
		CombinedTranscription:   combinedText,
		CombinedKeywords:        final,
		KeySentences:            keySentences,
		CombinedSentence:        combinedSentence,
		CombinedRebuiltAtUTC:    time.Now().UTC().Format(time.RFC3339),
		CombinedSentenceVersion: sentenceVersion,
	}

	if b.videoEnabled {
		if err := b.stitchVideo(ctx, slug, loaded, out); err != nil {
			b.log.Warn("Stitched video skipped", "slug", slug, "error", err)
		}
	}

	if err := b.writeArtifacts(ctx, slug, query, out); err != nil {
		return nil, err
	}
	b.log.Info("Combined artifacts written", "slug", slug, "transcripts", len(loaded), "keywords", len(final), "replace_count", replaceCount)
	return out, nil
}

// loadTranscripts fetches transcript JSON for each video key with bounded
// concurrency, preserving input order. Canonical keys are tried first, then
// the legacy flat layout.
func (b *Builder) loadTranscripts(ctx context.Context, videoKeys []string) ([]loadedTranscript, error) {
	results := make([]*loadedTranscript, len(videoKeys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fetchLimit)
	for i, videoKey := range videoKeys {
		g.Go(func() error {
			lt, err := b.loadOne(gctx, videoKey)
			if err != nil {
				if errors.Is(err, pkgerrors.ErrNotFound) {
					b.log.Warn("Transcript missing; skipping video", "video_key", videoKey)
					return nil
				}
				return err
			}
			results[i] = lt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("combine: load transcripts: %w", err)
	}

	out := make([]loadedTranscript, 0, len(results))
	for _, lt := range results {
		if lt != nil && strings.TrimSpace(lt.transcript.Text) != "" {
			out = append(out, *lt)
		}
	}
	return out, nil
}

func (b *Builder) loadOne(ctx context.Context, videoKey string) (*loadedTranscript, error) {
	key := naming.TranscriptKeyFromVideoKey(videoKey)
	var t types.Transcript
	err := b.bucket.GetJSON(ctx, key, &t)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		legacy := naming.LegacyTranscriptKey(videoKey)
		if legacy != key {
			key = legacy
			if err = b.bucket.GetJSON(ctx, key, &t); err == nil {
				b.log.Debug("Transcript read from legacy layout", "video_key", videoKey, "transcript_key", key)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return &loadedTranscript{
		ref: types.TranscriptRef{
			VideoObject:   videoKey,
			TranscriptKey: key,
			TextLen:       len(t.Text),
		},
		transcript: t,
	}, nil
}

// extractKeywords runs the combined extraction plus the per-transcript
// extractions concurrently. Per-video extraction feeds coverage compensation.
func (b *Builder) extractKeywords(ctx context.Context, query string, texts []string) ([]types.Keyword, [][]types.Keyword) {
	var (
		combined []types.Keyword
		perVideo = make([][]types.Keyword, len(texts))
		wg       sync.WaitGroup
		sem      = make(chan struct{}, b.fetchLimit)
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		combined = b.engine.ExtractCombined(ctx, query, texts, combinedKeywordCount)
	}()

	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			perVideo[i] = b.engine.ExtractSingle(ctx, query, text, perVideoKeywordCount)
		}()
	}
	wg.Wait()
	return combined, perVideo
}

// aggregatePerVideo rebuilds a combined ranking from the per-transcript
// extractions when the primary selection filtered down to nothing: max score
// per term, counts summed across transcripts.
func aggregatePerVideo(perVideo [][]types.Keyword) []types.Keyword {
	byTerm := map[string]types.Keyword{}
	for _, kws := range perVideo {
		for _, kw := range kws {
			cur, ok := byTerm[kw.Term]
			if !ok {
				byTerm[kw.Term] = kw
				continue
			}
			if kw.Score > cur.Score {
				cur.Score = kw.Score
			}
			cur.Count += kw.Count
			byTerm[kw.Term] = cur
		}
	}
	out := make([]types.Keyword, 0, len(byTerm))
	for _, kw := range byTerm {
		out = append(out, kw)
	}
	keywords.SortKeywords(out)
	return out
}

// writeArtifacts stores the four combined files and upserts the manifest's
// combined block.
func (b *Builder) writeArtifacts(ctx context.Context, slug, query string, out *types.CombinedOutput) error {
	outputKey := naming.CombinedOutputKey(slug)
	if err := b.bucket.PutJSON(ctx, outputKey, out); err != nil {
		return fmt.Errorf("combine: write output: %w", err)
	}

	transcriptionKey := naming.CombinedKey(slug, naming.CombinedTranscriptionFile)
	if err := b.bucket.Put(ctx, transcriptionKey, []byte(out.CombinedTranscription), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("combine: write transcription: %w", err)
	}

	keywordsKey := naming.CombinedKey(slug, naming.CombinedKeywordsFile)
	if err := b.bucket.PutJSON(ctx, keywordsKey, out.CombinedKeywords); err != nil {
		return fmt.Errorf("combine: write keywords: %w", err)
	}

	sentenceKey := naming.CombinedKey(slug, naming.CombinedSentenceFile)
	if err := b.bucket.Put(ctx, sentenceKey, []byte(out.CombinedSentence), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("combine: write sentence: %w", err)
	}

	return b.manifest.Upsert(ctx, slug, manifest.Partial{
		Query: query,
		Slug:  slug,
		Combined: &types.CombinedSummary{
			Status:           out.Status,
			OutputKey:        outputKey,
			TranscriptionKey: transcriptionKey,
			KeywordsKey:      keywordsKey,
			SentenceKey:      sentenceKey,
			VideoKey:         out.CombinedVideoKey,
			VideoURL:         out.CombinedVideoURL,
			Count:            out.Count,
			Keywords:         out.CombinedKeywords,
			Sentence:         out.CombinedSentence,
			UpdatedAtUTC:     time.Now().UTC().Format(time.RFC3339),
		},
	})
}
