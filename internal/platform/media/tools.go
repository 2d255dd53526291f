// Package media is the exec glue around system binaries used by the combined
// highlight builder.
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg for clip cutting and concatenation
// - ffprobe for duration probing
//
// Synchronous and deterministic; call from activities, never from workflows.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
)

type Tools interface {
	AssertReady(ctx context.Context) error

	// ProbeDuration returns the container duration in seconds, 0 when unknown.
	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
	// CutClip re-encodes [start,end] of inputPath to 1280x720@30fps H.264/AAC.
	CutClip(ctx context.Context, inputPath, outPath string, start, end float64) error
	// ConcatClips joins clips into a faststart MP4, stream-copying when the
	// inputs allow it and re-encoding otherwise.
	ConcatClips(ctx context.Context, clipPaths []string, outPath string) error
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("media: required binary %q not found: %w", bin, err)
		}
	}
	return nil
}

func (m *tools) run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > 800 {
			tail = tail[len(tail)-800:]
		}
		return fmt.Errorf("media: %s failed: %w (output: %s)", name, err, tail)
	}
	return nil
}

func (m *tools) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("media: ffprobe %s: %w", videoPath, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, nil
	}
	return dur, nil
}

func (m *tools) CutClip(ctx context.Context, inputPath, outPath string, start, end float64) error {
	return m.run(ctx, m.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-i", inputPath,
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2:black,fps=30",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "24",
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		outPath,
	)
}

func (m *tools) ConcatClips(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("media: concat requires at least one clip")
	}

	listPath := filepath.Join(filepath.Dir(outPath), "concat.txt")
	var b strings.Builder
	for _, p := range clipPaths {
		b.WriteString("file '")
		b.WriteString(filepath.ToSlash(p))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("media: write concat list: %w", err)
	}
	defer os.Remove(listPath)

	copyErr := m.run(ctx, m.ffmpegPath,
		"-y", "-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy",
		outPath,
	)
	if copyErr == nil {
		return nil
	}

	m.log.Warn("Stream-copy concat failed; re-encoding", "error", copyErr)
	return m.run(ctx, m.ffmpegPath,
		"-y", "-f", "concat", "-safe", "0", "-i", listPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "24",
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		outPath,
	)
}
