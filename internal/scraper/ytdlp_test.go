package scraper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsWatchURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc123", true},
		{"https://youtube.com/watch?v=abc123", true},
		{"https://youtu.be/abc123", true},
		{"https://www.youtube.com/playlist?list=PL1", false},
		{"https://www.youtube.com/@somechannel", false},
		{"https://www.youtube.com/watch", false},
		{"https://example.com/watch?v=abc", false},
		{"not a url", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsWatchURL(tc.url); got != tc.want {
			t.Fatalf("IsWatchURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestVideoIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tc := range cases {
		if got := VideoIDFromURL(tc.url); got != tc.want {
			t.Fatalf("VideoIDFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestFormatProfilesFallbackOrder(t *testing.T) {
	profiles := formatProfiles("zh")
	if len(profiles) != 3 {
		t.Fatalf("profiles = %d, want 3: %v", len(profiles), profiles)
	}
	if !strings.Contains(profiles[0], "language^=zh") {
		t.Fatalf("first profile missing language preference: %q", profiles[0])
	}
	for _, p := range profiles {
		if !strings.Contains(p, "height<=720") {
			t.Fatalf("profile without height cap: %q", p)
		}
	}

	plain := formatProfiles("")
	if len(plain) != 2 {
		t.Fatalf("profiles without language = %d, want 2: %v", len(plain), plain)
	}
}

func TestCollectDownload(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"Some_Title_abc123.mp4",
		"Some_Title_abc123.info.json",
		"Some_Title_abc123.webp",
		"Other_Video_zzz999.mp4",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res, err := collectDownload(dir, &infoPayload{ID: "abc123", Title: "Some Title", Duration: 42})
	if err != nil {
		t.Fatalf("collectDownload: %v", err)
	}
	if filepath.Base(res.VideoPath) != "Some_Title_abc123.mp4" {
		t.Fatalf("video path = %q", res.VideoPath)
	}
	if filepath.Base(res.InfoJSONPath) != "Some_Title_abc123.info.json" {
		t.Fatalf("info path = %q", res.InfoJSONPath)
	}
	if filepath.Base(res.ThumbnailPath) != "Some_Title_abc123.webp" {
		t.Fatalf("thumbnail path = %q", res.ThumbnailPath)
	}
	if res.Duration != 42 {
		t.Fatalf("duration = %v", res.Duration)
	}
}

func TestCollectDownloadMissingVideo(t *testing.T) {
	dir := t.TempDir()
	if _, err := collectDownload(dir, &infoPayload{ID: "abc123"}); err == nil {
		t.Fatalf("expected error for missing video file")
	}
}
