// Package stt wraps the whisper-ctranslate2 binary for speech-to-text.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

// Result is one finished transcription.
type Result struct {
	Language string
	Text     string
	Segments []types.Segment
}

// Client transcribes local media files.
type Client interface {
	Transcribe(ctx context.Context, mediaPath string) (*Result, error)
}

type profile struct {
	device      string
	computeType string
}

type client struct {
	log     *logger.Logger
	binPath string
	model   string
	timeout time.Duration

	// Once CUDA fails for a model size it stays failed for the process;
	// remember the working profile instead of probing every call.
	mu     sync.Mutex
	chosen map[string]profile
}

func NewClient(log *logger.Logger) Client {
	return &client{
		log:     log.With("service", "STT"),
		binPath: envutil.String("WHISPER_PATH", "whisper-ctranslate2"),
		model:   envutil.String("WHISPER_MODEL", "small"),
		timeout: envutil.DurationSeconds("WHISPER_TIMEOUT_SECONDS", 3000),
		chosen:  map[string]profile{},
	}
}

func (c *client) profiles() []profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.chosen[c.model]; ok {
		return []profile{p}
	}
	if envutil.Bool("WHISPER_CPU_ONLY", false) {
		return []profile{{device: "cpu", computeType: "int8"}}
	}
	return []profile{
		{device: "cuda", computeType: "float16"},
		{device: "cpu", computeType: "int8"},
	}
}

func (c *client) remember(p profile) {
	c.mu.Lock()
	c.chosen[c.model] = p
	c.mu.Unlock()
}

type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (c *client) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, fmt.Errorf("stt: media %s: %w", mediaPath, err)
	}

	outDir, err := os.MkdirTemp("", "stt-*")
	if err != nil {
		return nil, fmt.Errorf("stt: temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	var lastErr error
	for _, p := range c.profiles() {
		res, runErr := c.run(ctx, mediaPath, outDir, p)
		if runErr == nil {
			c.remember(p)
			return res, nil
		}
		lastErr = runErr
		c.log.Warn("Transcription profile failed", "device", p.device, "compute_type", p.computeType, "error", runErr)
	}
	return nil, lastErr
}

func (c *client) run(ctx context.Context, mediaPath, outDir string, p profile) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binPath,
		mediaPath,
		"--model", c.model,
		"--device", p.device,
		"--compute_type", p.computeType,
		"--output_format", "json",
		"--output_dir", outDir,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("stt: %s/%s on %s: %w (output: %s)", p.device, p.computeType, filepath.Base(mediaPath), err, tail(string(out), 400))
	}

	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	raw, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("stt: read output for %s: %w", stem, err)
	}
	var parsed whisperOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("stt: parse output for %s: %w", stem, err)
	}

	res := &Result{Language: parsed.Language}
	var sb strings.Builder
	for _, s := range parsed.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, types.Segment{Start: s.Start, End: s.End, Text: text})
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
	}
	res.Text = sb.String()
	return res, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
