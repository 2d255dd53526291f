package manifest

import (
	"testing"

	"github.com/yungbote/vidscribe-backend/internal/types"
)

func TestMergeVideosByObjectKey(t *testing.T) {
	current := types.QueryManifest{
		Query: "anti gravity",
		Slug:  "anti-gravity",
		Videos: []types.VideoRecord{
			{URL: "https://example.com/watch?v=a", ObjectKey: "queries/anti-gravity/videos/a.mp4", Status: types.StatusDownloaded},
		},
	}

	merged := merge(current, Partial{
		Videos: []types.VideoRecord{
			{ObjectKey: "queries/anti-gravity/videos/a.mp4", TranscriptKey: "queries/anti-gravity/transcripts/a.json", Status: types.StatusTranscribed},
			{URL: "https://example.com/watch?v=b", ObjectKey: "queries/anti-gravity/videos/b.mp4", Status: types.StatusDownloaded},
		},
	})

	if len(merged.Videos) != 2 {
		t.Fatalf("videos = %d, want 2: %+v", len(merged.Videos), merged.Videos)
	}
	a := merged.Videos[0]
	if a.Status != types.StatusTranscribed {
		t.Fatalf("status not overridden: %+v", a)
	}
	if a.URL != "https://example.com/watch?v=a" {
		t.Fatalf("unset field overwrote stored value: %+v", a)
	}
	if a.TranscriptKey != "queries/anti-gravity/transcripts/a.json" {
		t.Fatalf("transcript key not merged: %+v", a)
	}
}

func TestMergeVideosByURLWhenNoObjectKey(t *testing.T) {
	current := types.QueryManifest{
		Videos: []types.VideoRecord{
			{URL: "https://example.com/watch?v=a", Status: types.StatusDiscovered},
		},
	}
	merged := merge(current, Partial{
		Videos: []types.VideoRecord{
			{URL: "https://example.com/watch?v=a", Status: types.StatusFailed, Error: "live stream"},
		},
	})
	if len(merged.Videos) != 1 {
		t.Fatalf("videos = %d, want 1", len(merged.Videos))
	}
	if merged.Videos[0].Status != types.StatusFailed || merged.Videos[0].Error != "live stream" {
		t.Fatalf("failure not recorded: %+v", merged.Videos[0])
	}
}

func TestMergeCombinedShallow(t *testing.T) {
	current := types.QueryManifest{
		Combined: &types.CombinedSummary{
			OutputKey: "queries/x/combined/combined-output.json",
			Count:     3,
		},
	}
	merged := merge(current, Partial{
		Combined: &types.CombinedSummary{
			Sentence: "combined evidence.",
			VideoKey: "queries/x/combined/combined-video.mp4",
		},
	})
	c := merged.Combined
	if c == nil {
		t.Fatalf("combined dropped")
	}
	if c.OutputKey == "" || c.Count != 3 {
		t.Fatalf("existing combined fields lost: %+v", c)
	}
	if c.Sentence != "combined evidence." || c.VideoKey == "" {
		t.Fatalf("new combined fields not applied: %+v", c)
	}
}

func TestMergeCombinedStatusResetsCount(t *testing.T) {
	current := types.QueryManifest{
		Combined: &types.CombinedSummary{
			Status: "ok",
			Count:  3,
		},
	}
	merged := merge(current, Partial{
		Combined: &types.CombinedSummary{
			Status: "no-transcripts",
			Count:  0,
		},
	})
	c := merged.Combined
	if c == nil {
		t.Fatalf("combined dropped")
	}
	if c.Status != "no-transcripts" {
		t.Fatalf("status = %q, want no-transcripts", c.Status)
	}
	if c.Count != 0 {
		t.Fatalf("count = %d, want 0 alongside the status change", c.Count)
	}
}

func TestMergeQueryAndSlugOverwriteOnlyWhenSet(t *testing.T) {
	current := types.QueryManifest{Query: "old", Slug: "old"}
	merged := merge(current, Partial{Query: "new"})
	if merged.Query != "new" || merged.Slug != "old" {
		t.Fatalf("overwrite semantics wrong: %+v", merged)
	}
}

func TestMergeIgnoresEmptyVideo(t *testing.T) {
	merged := merge(types.QueryManifest{}, Partial{Videos: []types.VideoRecord{{}}})
	if len(merged.Videos) != 0 {
		t.Fatalf("empty video appended: %+v", merged.Videos)
	}
}
