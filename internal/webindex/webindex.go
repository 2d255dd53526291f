// Package webindex refreshes the downstream browse index after a batch
// finishes. The refresh is best effort and never fails a pipeline.
package webindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
)

// Refresher triggers a rebuild of the external index for one query slug.
type Refresher interface {
	Refresh(ctx context.Context, slug string) error
}

type refresher struct {
	log        *logger.Logger
	refreshURL string
	command    string
	httpClient *http.Client
}

func NewRefresher(log *logger.Logger) Refresher {
	return &refresher{
		log:        log.With("service", "WebIndex"),
		refreshURL: envutil.String("WEB_INDEX_REFRESH_URL", ""),
		command:    envutil.String("WEB_INDEX_REFRESH_CMD", ""),
		httpClient: &http.Client{Timeout: envutil.DurationSeconds("WEB_INDEX_TIMEOUT_SECONDS", 60)},
	}
}

func (r *refresher) Refresh(ctx context.Context, slug string) error {
	switch {
	case r.refreshURL != "":
		return r.refreshHTTP(ctx, slug)
	case r.command != "":
		return r.refreshExec(ctx, slug)
	default:
		r.log.Debug("No index refresh target configured; skipping", "slug", slug)
		return nil
	}
}

func (r *refresher) refreshHTTP(ctx context.Context, slug string) error {
	body, _ := json.Marshal(map[string]string{"slug": slug})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webindex: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webindex: refresh %s: %w", slug, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webindex: refresh %s: status %d", slug, resp.StatusCode)
	}
	return nil
}

func (r *refresher) refreshExec(ctx context.Context, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	parts := strings.Fields(r.command)
	args := append(parts[1:], slug)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("webindex: exec refresh %s: %w (output: %s)", slug, err, strings.TrimSpace(string(out)))
	}
	return nil
}
