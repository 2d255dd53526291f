package bucket

import "testing"

func TestContentTypeForKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"queries/golang/manifest.json", "application/json"},
		{"queries/golang/combined/combined-sentence.txt", "text/plain; charset=utf-8"},
		{"queries/golang/videos/Talk_abc123.mp4", "video/mp4"},
		{"queries/golang/videos/Talk_abc123.WEBM", "video/webm"},
		{"queries/golang/thumbnails/Talk_abc123.webp", "image/webp"},
		{"queries/golang/thumbnails/Talk_abc123.jpg", "image/jpeg"},
		{"queries/golang/thumbnails/Talk_abc123.jpeg", "image/jpeg"},
		{"queries/golang/thumbnails/Talk_abc123.png", "image/png"},
		{"index.html", "text/html; charset=utf-8"},
		{"queries/golang/videos/Talk_abc123", "application/octet-stream"},
		{"queries/golang/videos/Talk_abc123.bin", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := ContentTypeForKey(tc.key); got != tc.want {
			t.Fatalf("ContentTypeForKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
