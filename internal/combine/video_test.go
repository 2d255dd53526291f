package combine

import (
	"testing"

	"github.com/yungbote/vidscribe-backend/internal/types"
)

func TestBestSegment(t *testing.T) {
	segments := []types.Segment{
		{Start: 0, End: 4, Text: "welcome back everyone"},
		{Start: 4, End: 9, Text: "today we cover quantum entanglement"},
		{Start: 9, End: 12, Text: "see you next time"},
	}

	seg := bestSegment("Today we cover quantum entanglement.", segments)
	if seg.Start != 4 || seg.End != 9 {
		t.Fatalf("matched segment = %+v, want 4..9", seg)
	}
}

func TestBestSegmentFallback(t *testing.T) {
	segments := []types.Segment{
		{Start: 0, End: 4, Text: "nothing related"},
	}
	seg := bestSegment("completely different sentence", segments)
	if seg.Start != 0 || seg.End != fallbackLength {
		t.Fatalf("fallback segment = %+v, want 0..%v", seg, fallbackLength)
	}
}

func TestBestSegmentIgnoresTinySegments(t *testing.T) {
	segments := []types.Segment{
		{Start: 2, End: 3, Text: "a"},
		{Start: 5, End: 9, Text: "the actual matching sentence"},
	}
	seg := bestSegment("the actual matching sentence", segments)
	if seg.Start != 5 {
		t.Fatalf("tiny segment preferred: %+v", seg)
	}
}

func TestClipWindow(t *testing.T) {
	cases := []struct {
		name      string
		seg       types.Segment
		duration  float64
		wantStart float64
		wantEnd   float64
	}{
		{
			name:      "lead_in_clamped_at_zero",
			seg:       types.Segment{Start: 0.5, End: 3},
			duration:  100,
			wantStart: 0,
			wantEnd:   8,
		},
		{
			name:      "tail_padding_extends_past_minimum",
			seg:       types.Segment{Start: 10, End: 18},
			duration:  100,
			wantStart: 8.5,
			wantEnd:   21.5,
		},
		{
			name:      "clamped_to_duration",
			seg:       types.Segment{Start: 95, End: 99},
			duration:  100,
			wantStart: 93.5,
			wantEnd:   100,
		},
		{
			name:      "capped_at_max_length",
			seg:       types.Segment{Start: 10, End: 25},
			duration:  100,
			wantStart: 8.5,
			wantEnd:   22.5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := clipWindow(tc.seg, tc.duration)
			if start != tc.wantStart || end != tc.wantEnd {
				t.Fatalf("clipWindow(%+v, %v) = %v..%v, want %v..%v", tc.seg, tc.duration, start, end, tc.wantStart, tc.wantEnd)
			}
			if end-start > clipMaxLength {
				t.Fatalf("clip longer than max: %v", end-start)
			}
		})
	}
}

func TestAggregatePerVideo(t *testing.T) {
	perVideo := [][]types.Keyword{
		{
			{Term: "rust", Score: 0.9, Count: 3},
			{Term: "memory", Score: 0.6, Count: 2},
		},
		{
			{Term: "rust", Score: 0.7, Count: 5},
			{Term: "safety", Score: 0.8, Count: 1},
		},
	}
	got := aggregatePerVideo(perVideo)
	if len(got) != 3 {
		t.Fatalf("aggregated %d terms, want 3: %+v", len(got), got)
	}
	if got[0].Term != "rust" || got[0].Score != 0.9 || got[0].Count != 8 {
		t.Fatalf("rust aggregate = %+v, want score 0.9 count 8", got[0])
	}
	if got[1].Term != "safety" {
		t.Fatalf("ordering wrong: %+v", got)
	}
}

func TestCompact(t *testing.T) {
	if got := compact("Hello, World! 你好。"); got != "helloworld你好" {
		t.Fatalf("compact = %q", got)
	}
}
