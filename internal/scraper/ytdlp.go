// Package scraper adapts the yt-dlp binary as the platform search and
// download collaborator. Everything here runs inside activities.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
)

// Candidate is one discovered video, from flat search extraction.
type Candidate struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	IsLive     bool    `json:"is_live"`
	LiveStatus string  `json:"live_status"`
	UploadDate string  `json:"upload_date"` // YYYYMMDD, often empty in flat mode
}

// DownloadResult lists the local files produced for one URL.
type DownloadResult struct {
	VideoPath     string
	InfoJSONPath  string
	ThumbnailPath string
	VideoID       string
	Title         string
	Duration      float64
}

// Client is the scraper contract the activities depend on.
type Client interface {
	Search(ctx context.Context, query string, count int) ([]Candidate, error)
	Download(ctx context.Context, rawURL, destDir string) (*DownloadResult, error)
}

type client struct {
	log        *logger.Logger
	binPath    string
	cookiePath string
	timeout    time.Duration
}

func NewClient(log *logger.Logger) Client {
	return &client{
		log:        log.With("service", "Scraper"),
		binPath:    envutil.String("YTDLP_PATH", "yt-dlp"),
		cookiePath: envutil.String("YTDLP_COOKIE_FILE", ""),
		timeout:    envutil.DurationSeconds("YTDLP_TIMEOUT_SECONDS", 1500),
	}
}

func (c *client) baseArgs() []string {
	args := []string{"--no-playlist", "--restrict-filenames"}
	if c.cookiePath != "" {
		if _, err := os.Stat(c.cookiePath); err == nil {
			args = append(args, "--cookies", c.cookiePath)
		}
	}
	return args
}

type flatSearchResult struct {
	Entries []Candidate `json:"entries"`
}

func (c *client) Search(ctx context.Context, query string, count int) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("scraper: empty query: %w", pkgerrors.ErrInvalidArgument)
	}
	if count < 1 {
		count = 1
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append(c.baseArgs(),
		"--quiet",
		"--flat-playlist",
		"--dump-single-json",
		fmt.Sprintf("ytsearch%d:%s", count, query),
	)
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("scraper: search %q: %w", query, err)
	}

	var res flatSearchResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("scraper: search %q: bad json: %w", query, err)
	}
	return res.Entries, nil
}

type infoPayload struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	IsLive     bool    `json:"is_live"`
	LiveStatus string  `json:"live_status"`
}

// Format profiles tried in order; later ones loosen the audio constraint so a
// missing preferred-language track does not fail the download.
func formatProfiles(preferredAudioLang string) []string {
	lang := strings.TrimSpace(preferredAudioLang)
	profiles := []string{}
	if lang != "" {
		profiles = append(profiles,
			fmt.Sprintf("bestvideo[height<=720]+bestaudio[language^=%s]/bestvideo[height<=720]+bestaudio/best[height<=720]", lang))
	}
	profiles = append(profiles,
		"bestvideo[height<=720]+bestaudio/best[height<=720]",
		"best[height<=720]/best",
	)
	return profiles
}

func (c *client) Download(ctx context.Context, rawURL, destDir string) (*DownloadResult, error) {
	if !IsWatchURL(rawURL) {
		return nil, fmt.Errorf("scraper: not a watch url %q: %w", rawURL, pkgerrors.ErrInvalidArgument)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("scraper: mkdir %s: %w", destDir, err)
	}

	info, err := c.probe(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if info.IsLive && info.LiveStatus != "was_live" {
		return nil, fmt.Errorf("scraper: %s (status=%s): %w", rawURL, info.LiveStatus, pkgerrors.ErrLiveStreamRejected)
	}

	outTmpl := filepath.Join(destDir, "%(title)s_%(id)s.%(ext)s")
	lang := envutil.String("YTDLP_AUDIO_LANG", "")

	var lastErr error
	for _, format := range formatProfiles(lang) {
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		args := append(c.baseArgs(),
			"--format", format,
			"--merge-output-format", "mp4",
			"--write-thumbnail",
			"--write-info-json",
			"--output", outTmpl,
			rawURL,
		)
		cmd := exec.CommandContext(dctx, c.binPath, args...)
		out, runErr := cmd.CombinedOutput()
		cancel()
		if runErr == nil {
			return collectDownload(destDir, info)
		}
		lastErr = fmt.Errorf("scraper: download %s (format=%s): %w (output: %s)", rawURL, format, runErr, tail(string(out), 400))
		c.log.Warn("Download format profile failed; trying next", "url", rawURL, "format", format, "error", runErr)
	}
	return nil, lastErr
}

func (c *client) probe(ctx context.Context, rawURL string) (*infoPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	args := append(c.baseArgs(), "--quiet", "--skip-download", "--dump-json", rawURL)
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("scraper: probe %s: %w", rawURL, err)
	}
	var info infoPayload
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("scraper: probe %s: bad json: %w", rawURL, err)
	}
	return &info, nil
}

// collectDownload locates the files yt-dlp produced for the video id.
func collectDownload(destDir string, info *infoPayload) (*DownloadResult, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, fmt.Errorf("scraper: read %s: %w", destDir, err)
	}

	res := &DownloadResult{VideoID: info.ID, Title: info.Title, Duration: info.Duration}
	marker := "_" + info.ID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if !strings.HasSuffix(stem, marker) && !strings.Contains(stem, marker+".") {
			continue
		}
		full := filepath.Join(destDir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".mp4", ".mkv", ".webm":
			res.VideoPath = full
		case ".json":
			res.InfoJSONPath = full
		case ".jpg", ".jpeg", ".png", ".webp":
			res.ThumbnailPath = full
		}
	}
	if res.VideoPath == "" {
		return nil, fmt.Errorf("scraper: downloaded video for id %s not found in %s", info.ID, destDir)
	}
	return res, nil
}

// IsWatchURL accepts single-video watch URLs and rejects channels, playlists,
// and shorts-style paths.
func IsWatchURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch {
	case strings.HasSuffix(host, "youtube.com"):
		return u.Path == "/watch" && u.Query().Get("v") != ""
	case host == "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0 && !strings.Contains(strings.Trim(u.Path, "/"), "/")
	default:
		return false
	}
}

// VideoIDFromURL extracts the platform id used for deterministic basenames
// and pipeline ids.
func VideoIDFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fallbackID(rawURL)
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts := strings.Split(p, "/")
		return parts[len(parts)-1]
	}
	return fallbackID(rawURL)
}

func fallbackID(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if len(s) > 12 {
		return s[len(s)-12:]
	}
	return s
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
