package mediasync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// DurationProber reads the playable duration of a video file from its
// metadata without loading the full payload.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Validator applies the pure candidate-file checks: MIME membership, count
// ceilings, and the video duration ceiling. It performs no network I/O.
type Validator struct {
	cfg    Config
	prober DurationProber
}

// NewValidator builds a validator. A prober is required whenever the config
// admits videos.
func NewValidator(cfg Config, prober DurationProber) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxVideos > 0 && prober == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validator requires a duration prober for video kinds")
	}
	return &Validator{cfg: cfg, prober: prober}, nil
}

// Validate classifies the candidate and rejects it when it cannot join the
// collection. A probe failure on a video is a rejection, never a silent pass.
func (v *Validator) Validate(ctx context.Context, file *LocalFile, counts Counts) (SlotKind, error) {
	if file == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "no file provided")
	}

	switch {
	case containsMIME(v.cfg.ImageMIMEs, file.MIME):
		if counts.Images >= v.cfg.MaxImages {
			return "", pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("image limit of %d reached", v.cfg.MaxImages))
		}
		return KindImage, nil

	case containsMIME(v.cfg.VideoMIMEs, file.MIME):
		if counts.Videos >= v.cfg.MaxVideos {
			return "", pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("video limit of %d reached", v.cfg.MaxVideos))
		}
		duration, err := v.prober.Duration(ctx, file.Path)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "video metadata unreadable")
		}
		if duration > v.cfg.MaxVideoDuration {
			return "", pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("video runs %s, ceiling is %s", duration.Round(time.Second), v.cfg.MaxVideoDuration))
		}
		return KindVideo, nil

	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("content type %q not allowed", file.MIME))
	}
}

func containsMIME(allowed []string, mime string) bool {
	for _, m := range allowed {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

// FFProbe shells out to ffprobe for container metadata. The probe reads only
// headers, not the payload.
type FFProbe struct {
	Binary string
}

func NewFFProbe() *FFProbe {
	return &FFProbe{Binary: "ffprobe"}
}

func (p *FFProbe) Duration(ctx context.Context, path string) (time.Duration, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return 0, fmt.Errorf("ffprobe: %s: %w", detail, err)
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	raw := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q", raw)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
