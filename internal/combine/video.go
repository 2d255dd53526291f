package combine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yungbote/vidscribe-backend/internal/naming"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

const (
	clipLeadIn     = 1.5
	clipMinLength  = 8.0
	clipTrailOut   = 3.5
	clipMaxLength  = 14.0
	fallbackLength = 12.0
	maxClips       = 5
)

var compactRe = regexp.MustCompile(`[\s\p{P}]+`)

// compact lowers text and strips whitespace and punctuation so short STT
// segments can be matched against trimmed key sentences.
func compact(s string) string {
	return compactRe.ReplaceAllString(strings.ToLower(s), "")
}

// bestSegment finds the transcript segment whose compacted text overlaps the
// key sentence. Returns a (0, fallbackLength) window when nothing matches.
func bestSegment(sentence string, segments []types.Segment) types.Segment {
	target := compact(strings.Trim(sentence, "."))

	best := types.Segment{Start: 0, End: fallbackLength}
	bestLen := 0
	for _, seg := range segments {
		c := compact(seg.Text)
		if len(c) < 6 {
			continue
		}
		if strings.Contains(target, c) || strings.Contains(c, target) {
			overlap := len(c)
			if len(target) < overlap {
				overlap = len(target)
			}
			if overlap > bestLen {
				bestLen = overlap
				best = seg
			}
		}
	}
	return best
}

// clipWindow computes the cut range for a matched segment, padded ahead and
// behind and clamped to the container duration and the max clip length.
func clipWindow(seg types.Segment, duration float64) (float64, float64) {
	start := seg.Start - clipLeadIn
	if start < 0 {
		start = 0
	}
	end := start + clipMinLength
	if padded := seg.End + clipTrailOut; padded > end {
		end = padded
	}
	if duration > 0 && end > duration {
		end = duration
	}
	if end-start > clipMaxLength {
		end = start + clipMaxLength
	}
	return start, end
}

// stitchVideo cuts one clip per key sentence from its source video, concats
// them, and uploads the result. Best effort: the caller logs and continues
// on error.
func (b *Builder) stitchVideo(ctx context.Context, slug string, loaded []loadedTranscript, out *types.CombinedOutput) error {
	if len(out.KeySentences) == 0 {
		return nil
	}
	if err := b.media.AssertReady(ctx); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "combine-video-*")
	if err != nil {
		return fmt.Errorf("combine: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	byVideo := map[string]loadedTranscript{}
	for _, lt := range loaded {
		byVideo[lt.ref.VideoObject] = lt
	}
	localCache := map[string]string{}

	var (
		clipPaths []string
		clips     []types.CombinedVideoClip
	)
	sentencesToCut := out.KeySentences
	if len(sentencesToCut) > maxClips {
		sentencesToCut = sentencesToCut[:maxClips]
	}
	for i, ks := range sentencesToCut {
		videoKey := ks.SourceVideoObject
		if videoKey == "" {
			continue
		}
		lt, ok := byVideo[videoKey]
		if !ok {
			continue
		}

		localVideo, cached := localCache[videoKey]
		if !cached {
			localVideo = filepath.Join(tmpDir, filepath.Base(videoKey))
			if err := b.bucket.Download(ctx, videoKey, localVideo); err != nil {
				b.log.Warn("Clip source download failed", "video_key", videoKey, "error", err)
				continue
			}
			localCache[videoKey] = localVideo
		}

		duration, err := b.media.ProbeDuration(ctx, localVideo)
		if err != nil {
			b.log.Warn("Duration probe failed", "video_key", videoKey, "error", err)
			duration = 0
		}

		seg := bestSegment(ks.Sentence, lt.transcript.Segments)
		start, end := clipWindow(seg, duration)
		if end <= start {
			continue
		}

		clipPath := filepath.Join(tmpDir, fmt.Sprintf("clip-%02d.mp4", i))
		if err := b.media.CutClip(ctx, localVideo, clipPath, start, end); err != nil {
			b.log.Warn("Clip cut failed", "video_key", videoKey, "error", err)
			continue
		}
		clipPaths = append(clipPaths, clipPath)
		clips = append(clips, types.CombinedVideoClip{
			SourceVideoObject: videoKey,
			Sentence:          ks.Sentence,
			ClipStart:         start,
			ClipEnd:           end,
			ClipDuration:      end - start,
		})
	}
	if len(clipPaths) == 0 {
		return fmt.Errorf("combine: no clips produced")
	}

	outVideo := filepath.Join(tmpDir, naming.CombinedVideoFile)
	if err := b.media.ConcatClips(ctx, clipPaths, outVideo); err != nil {
		return fmt.Errorf("combine: concat clips: %w", err)
	}

	videoKey := naming.CombinedKey(slug, naming.CombinedVideoFile)
	if err := b.bucket.PutFile(ctx, videoKey, outVideo, "video/mp4"); err != nil {
		return fmt.Errorf("combine: upload stitched video: %w", err)
	}

	out.CombinedVideoKey = videoKey
	out.CombinedVideoURL = b.bucket.PublicURL(videoKey)
	out.CombinedVideoClips = clips
	out.CombinedVideoClipCount = len(clips)
	return nil
}
