package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/vidscribe-backend/internal/combine"
	"github.com/yungbote/vidscribe-backend/internal/keywords"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/naming"
	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/llm"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/scraper"
	"github.com/yungbote/vidscribe-backend/internal/stt"
	"github.com/yungbote/vidscribe-backend/internal/types"
	"github.com/yungbote/vidscribe-backend/internal/webindex"
)

// Activities carries the collaborator clients for every pipeline activity.
// All mutation goes through the object store; nothing here is shared across
// activity invocations.
type Activities struct {
	Log      *logger.Logger
	Bucket   bucket.Service
	Manifest *manifest.Store
	Scraper  scraper.Client
	STT      stt.Client
	LLM      llm.Client
	Engine   *keywords.Engine
	Builder  *combine.Builder
	Index    webindex.Refresher
}

const searchOverfetchCap = 50

// SearchVideos over-fetches candidates, filters them down, and returns watch
// URLs in discovery order.
func (a *Activities) SearchVideos(ctx context.Context, in SearchInput) ([]string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, temporal.NewApplicationError("empty query", ErrTypeInvalidArgument)
	}

	fetch := in.Limit * 10
	if fetch > searchOverfetchCap {
		fetch = searchOverfetchCap
	}
	candidates, err := a.Scraper.Search(ctx, in.Query, fetch)
	if err != nil {
		return nil, err
	}

	maxSeconds := float64(in.MaxDurationMinutes) * 60
	var cutoff time.Time
	if in.MaxAgeDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -in.MaxAgeDays)
	}

	seen := map[string]bool{}
	var urls []string
	for _, c := range candidates {
		if len(urls) >= in.Limit {
			break
		}
		if c.IsLive || c.LiveStatus == "is_live" || c.LiveStatus == "is_upcoming" {
			continue
		}
		if maxSeconds > 0 && c.Duration > maxSeconds {
			continue
		}
		if !cutoff.IsZero() && c.UploadDate != "" {
			if uploaded, perr := time.Parse("20060102", c.UploadDate); perr == nil && uploaded.Before(cutoff) {
				continue
			}
		}
		u := watchURL(c)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}

	if len(urls) == 0 {
		return nil, temporal.NewApplicationError(
			fmt.Sprintf("no candidates for %q after filtering %d results", in.Query, len(candidates)),
			ErrTypeNoCandidates)
	}
	a.Log.Info("Search complete", "query", in.Query, "fetched", len(candidates), "selected", len(urls))
	return urls, nil
}

func watchURL(c scraper.Candidate) string {
	if scraper.IsWatchURL(c.URL) {
		return c.URL
	}
	if c.ID != "" {
		return "https://www.youtube.com/watch?v=" + c.ID
	}
	return ""
}

// DownloadVideo fetches the media plus sidecars and stores them under the
// query's canonical folders. Idempotent: the basename derives from the
// platform-assigned id, so a retry overwrites the same keys.
func (a *Activities) DownloadVideo(ctx context.Context, in DownloadInput) (DownloadOutput, error) {
	var out DownloadOutput
	slug := naming.Slug(in.Query)

	tmpDir, err := os.MkdirTemp("", "download-*")
	if err != nil {
		return out, fmt.Errorf("download: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	res, err := a.Scraper.Download(ctx, in.URL, tmpDir)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrLiveStreamRejected) {
			return out, temporal.NewApplicationError(err.Error(), ErrTypeLiveStreamRejected)
		}
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			return out, temporal.NewApplicationError(err.Error(), ErrTypeInvalidArgument)
		}
		return out, err
	}

	videoKey := naming.KeyFor(slug, naming.CategoryVideos, filepath.Base(res.VideoPath))
	if err := a.Bucket.PutFile(ctx, videoKey, res.VideoPath, bucket.ContentTypeForKey(videoKey)); err != nil {
		return out, fmt.Errorf("download: store video: %w", err)
	}
	out.VideoKey = videoKey

	if res.InfoJSONPath != "" {
		infoKey := naming.KeyFor(slug, naming.CategoryVideos, filepath.Base(res.InfoJSONPath))
		if err := a.Bucket.PutFile(ctx, infoKey, res.InfoJSONPath, "application/json"); err != nil {
			a.Log.Warn("Info sidecar upload failed", "key", infoKey, "error", err)
		}
	}
	if res.ThumbnailPath != "" {
		thumbKey := naming.KeyFor(slug, naming.CategoryThumbnails, filepath.Base(res.ThumbnailPath))
		if err := a.Bucket.PutFile(ctx, thumbKey, res.ThumbnailPath, bucket.ContentTypeForKey(thumbKey)); err != nil {
			a.Log.Warn("Thumbnail upload failed", "key", thumbKey, "error", err)
		} else {
			out.ThumbnailKey = thumbKey
		}
	}

	err = a.Manifest.Upsert(ctx, slug, manifest.Partial{
		Query: in.Query,
		Slug:  slug,
		Videos: []types.VideoRecord{{
			URL:          in.URL,
			ObjectKey:    videoKey,
			ThumbnailKey: out.ThumbnailKey,
			Status:       types.StatusDownloaded,
			SearchQuery:  in.Query,
		}},
	})
	if err != nil {
		return out, fmt.Errorf("download: manifest: %w", err)
	}
	return out, nil
}

// TranscribeVideo runs STT over the stored media and writes the transcript
// JSON at the canonical key.
func (a *Activities) TranscribeVideo(ctx context.Context, videoKey string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "transcribe-*")
	if err != nil {
		return "", fmt.Errorf("transcribe: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, filepath.Base(videoKey))
	if err := a.Bucket.Download(ctx, videoKey, localPath); err != nil {
		return "", fmt.Errorf("transcribe: fetch %s: %w", videoKey, err)
	}

	res, err := a.STT.Transcribe(ctx, localPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %s: %w", videoKey, err)
	}

	transcriptKey := naming.TranscriptKeyFromVideoKey(videoKey)
	t := types.Transcript{
		Text:     res.Text,
		Language: res.Language,
		Segments: res.Segments,
	}
	if err := a.Bucket.PutJSON(ctx, transcriptKey, t); err != nil {
		return "", fmt.Errorf("transcribe: store %s: %w", transcriptKey, err)
	}

	slug, ok := naming.SlugFromKey(videoKey)
	if ok {
		err = a.Manifest.Upsert(ctx, slug, manifest.Partial{
			Videos: []types.VideoRecord{{
				ObjectKey:     videoKey,
				TranscriptKey: transcriptKey,
				Status:        types.StatusTranscribed,
			}},
		})
		if err != nil {
			return "", fmt.Errorf("transcribe: manifest: %w", err)
		}
	}
	return res.Text, nil
}

// SummarizeContent asks the LLM for a summary, ranks keywords against the
// transcript, and merges both into the stored transcript JSON. The keyword
// path always succeeds via the frequency fallback; only the summary is
// allowed to stay empty.
func (a *Activities) SummarizeContent(ctx context.Context, in SummarizeInput) (SummarizeOutput, error) {
	var out SummarizeOutput
	if strings.TrimSpace(in.Text) == "" {
		return out, temporal.NewApplicationError("empty transcript text", ErrTypeInvalidArgument)
	}

	if resp, err := a.LLM.Summarize(ctx, in.Text); err != nil {
		a.Log.Warn("Summarize call failed; keeping transcript without summary", "video_key", in.VideoKey, "error", err)
	} else {
		out.Summary = resp.Summary
	}

	ranked := a.Engine.ExtractSingle(ctx, in.Query, in.Text, keywords.TopK)
	for _, kw := range ranked {
		out.Keywords = append(out.Keywords, types.TranscriptKeyword{
			Word:  kw.Term,
			Count: kw.Count,
			Score: kw.Score,
		})
	}
	out.SearchQuery = in.Query

	transcriptKey := naming.TranscriptKeyFromVideoKey(in.VideoKey)
	var t types.Transcript
	err := a.Bucket.GetJSON(ctx, transcriptKey, &t)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		t = types.Transcript{Text: in.Text}
		err = nil
	}
	if err != nil {
		return out, fmt.Errorf("summarize: read %s: %w", transcriptKey, err)
	}
	t.Summary = out.Summary
	t.Keywords = out.Keywords
	t.SearchQuery = in.Query
	if err := a.Bucket.PutJSON(ctx, transcriptKey, t); err != nil {
		return out, fmt.Errorf("summarize: store %s: %w", transcriptKey, err)
	}

	if slug, ok := naming.SlugFromKey(in.VideoKey); ok {
		err = a.Manifest.Upsert(ctx, slug, manifest.Partial{
			Videos: []types.VideoRecord{{
				ObjectKey: in.VideoKey,
				Status:    types.StatusSummarized,
			}},
		})
		if err != nil {
			return out, fmt.Errorf("summarize: manifest: %w", err)
		}
	}
	return out, nil
}

// BuildCombined aggregates the batch into the combined artifacts.
func (a *Activities) BuildCombined(ctx context.Context, in BuildInput) (*types.CombinedOutput, error) {
	return a.Builder.Build(ctx, in.Query, in.VideoKeys)
}

// RefreshIndex pings the downstream catalog. Best effort by contract.
func (a *Activities) RefreshIndex(ctx context.Context, slug string) (string, error) {
	if err := a.Index.Refresh(ctx, slug); err != nil {
		return "", err
	}
	return "refreshed:" + slug, nil
}

// MarkFailed records a terminal failure on the video's manifest entry.
func (a *Activities) MarkFailed(ctx context.Context, in DownloadInput) error {
	slug := naming.Slug(in.Query)
	return a.Manifest.Upsert(ctx, slug, manifest.Partial{
		Query: in.Query,
		Slug:  slug,
		Videos: []types.VideoRecord{{
			URL:         in.URL,
			Status:      types.StatusFailed,
			SearchQuery: in.Query,
		}},
	})
}
