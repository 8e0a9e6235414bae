// Package ffmpeg drives the external ffprobe and ffmpeg binaries: probing
// actual stream metadata and running the encode child process.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/spacesaver/internal/models"
)

// ProbeResult contains the complete ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	NumStreams int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	Profile       string            `json:"profile"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle, data
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	SampleAspect  string            `json:"sample_aspect_ratio,omitempty"`
	DisplayAspect string            `json:"display_aspect_ratio,omitempty"`
	PixFmt        string            `json:"pix_fmt,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// VideoStreams returns all video streams in container order.
func (r *ProbeResult) VideoStreams() []ProbeStream {
	return r.streamsByType("video")
}

// AudioStreams returns all audio streams in container order.
func (r *ProbeResult) AudioStreams() []ProbeStream {
	return r.streamsByType("audio")
}

func (r *ProbeResult) streamsByType(codecType string) []ProbeStream {
	var streams []ProbeStream
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			streams = append(streams, s)
		}
	}
	return streams
}

// Duration returns the container duration in seconds, 0 if unknown.
func (r *ProbeResult) Duration() float64 {
	if dur, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
		return dur
	}
	return 0
}

// BitrateKbps returns the overall container bitrate in kbps, 0 if unknown.
func (r *ProbeResult) BitrateKbps() int {
	if br, err := strconv.Atoi(r.Format.BitRate); err == nil {
		return br / 1000
	}
	return 0
}

// EstimateFrameTotal estimates the total video frame count as the sum of
// fps x duration over the video streams, falling back to container duration
// at 25 fps when stream durations are unusable.
func (r *ProbeResult) EstimateFrameTotal() int64 {
	var total int64
	for _, vs := range r.VideoStreams() {
		fps := parseFramerate(vs.RFrameRate)
		if fps == 0 {
			fps = 25.0
		}
		var duration float64
		if d, err := strconv.ParseFloat(vs.Duration, 64); err == nil {
			duration = d
		}
		total += int64(fps * duration)
	}
	if total == 0 {
		total = int64(r.Duration() * 25)
	}
	return total
}

// parseFramerate evaluates a rational framerate like "24000/1001" or "25/1".
// Returns 0 when unparseable.
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewProber creates a new media file prober.
func NewProber(ffprobePath string, timeout time.Duration, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     timeout,
		logger:      log,
	}
}

// Probe probes a media file and returns detailed information.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// ActualMetadata probes a file and extracts an ACTUAL metadata row for the
// given entry. Never fails: any probe error yields a row with every field at
// its sentinel default.
func (p *Prober) ActualMetadata(ctx context.Context, entryUUID, path string) *models.Metadata {
	probe, err := p.Probe(ctx, path)
	if err != nil {
		p.logger.Warn("probe failed",
			slog.String("uuid", entryUUID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return models.NewMetadata(entryUUID, models.KindActual)
	}
	return MetadataFromProbe(entryUUID, probe)
}

// MetadataFromProbe extracts an ACTUAL metadata row from an existing probe
// result. Fields that cannot be determined keep their sentinel defaults.
func MetadataFromProbe(entryUUID string, probe *ProbeResult) *models.Metadata {
	meta := models.NewMetadata(entryUUID, models.KindActual)

	videoStreams := probe.VideoStreams()
	if len(videoStreams) == 0 {
		return meta
	}

	// First video stream is usually the main one.
	vs := videoStreams[0]

	if vs.CodecName != "" {
		meta.Codec = vs.CodecName
	}
	if vs.PixFmt != "" {
		meta.Format = vs.PixFmt
	}
	if vs.Width > 0 && vs.Height > 0 {
		meta.Resolution = fmt.Sprintf("%dx%d", vs.Width, vs.Height)
	}
	// "0:1" is ffprobe's way of saying the aspect ratio is undefined.
	if vs.SampleAspect != "" && vs.SampleAspect != "0:1" {
		meta.SAR = vs.SampleAspect
	}
	if vs.DisplayAspect != "" && vs.DisplayAspect != "0:1" {
		meta.DAR = vs.DisplayAspect
	}
	if fps := parseFramerate(vs.RFrameRate); fps > 0 {
		meta.Framerate = math.Round(fps*1000) / 1000
	}

	extra := make(map[string]any)
	if dur := probe.Duration(); dur > 0 {
		extra["duration"] = dur
	}
	if br, err := strconv.Atoi(probe.Format.BitRate); err == nil && br > 0 {
		extra["bitrate"] = br
	}
	if len(extra) > 0 {
		if data, err := json.Marshal(extra); err == nil {
			meta.Extra = string(data)
		}
	}

	return meta
}
