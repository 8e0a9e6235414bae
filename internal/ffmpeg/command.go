package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// stderrTailBytes bounds how much of the child's stderr is carried in the
// failure error.
const stderrTailBytes = 600

// Audio codecs that are lossless or uncompressed and worth re-encoding.
// pcm_* is matched by prefix.
var losslessCodecs = map[string]bool{
	"truehd": true,
	"mlp":    true,
	"flac":   true,
}

// isLossless reports whether an audio codec is lossless or uncompressed.
func isLossless(codecName string) bool {
	name := strings.ToLower(codecName)
	return losslessCodecs[name] || strings.HasPrefix(name, "pcm_")
}

// isDTSHD reports whether a DTS stream is the lossless DTS-HD MA or DTS:X
// variant. Plain DTS is lossy.
func isDTSHD(codecName, profile string) bool {
	if strings.ToLower(codecName) != "dts" {
		return false
	}
	prof := strings.ToLower(profile)
	return strings.Contains(prof, "ma") || strings.Contains(prof, "hd") || strings.Contains(prof, "x")
}

// Encoder builds and runs ffmpeg encode commands.
type Encoder struct {
	ffmpegPath string
	preset     string
	logger     *slog.Logger
}

// NewEncoder creates an encoder using the given ffmpeg binary and x265 preset.
func NewEncoder(ffmpegPath, preset string, log *slog.Logger) *Encoder {
	if log == nil {
		log = slog.Default()
	}
	if preset == "" {
		preset = "slow"
	}
	return &Encoder{
		ffmpegPath: ffmpegPath,
		preset:     preset,
		logger:     log,
	}
}

// BuildArgs assembles the encode argv: all streams mapped, video to libx265
// at the given CRF, optional downscale to resCap, lossless audio re-encoded,
// lossy audio and subtitles copied, progress on stdout, matroska out.
func (e *Encoder) BuildArgs(sourcePath, workfile string, crf, resCap int, probe *ProbeResult) []string {
	videoStreams := probe.VideoStreams()
	audioStreams := probe.AudioStreams()

	args := []string{
		"-y", "-loglevel", "error",
		"-i", sourcePath,
		"-map", "0:v?",
		"-map", "0:a?",
		"-map", "0:s?",
		"-c:v", "libx265",
		"-crf", strconv.Itoa(crf),
		"-preset", e.preset,
		"-x265-params", "log-level=error",
	}

	// Downscale only when the source exceeds the cap. scale=-2:H keeps the
	// aspect ratio with an even width.
	maxHeight := 0
	for _, vs := range videoStreams {
		if vs.Height > maxHeight {
			maxHeight = vs.Height
		}
	}
	if resCap > 0 && maxHeight > resCap {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", resCap))
	}

	anyLossless := false
	for _, as := range audioStreams {
		if isLossless(as.CodecName) || isDTSHD(as.CodecName, as.Profile) {
			anyLossless = true
			break
		}
	}

	if !anyLossless {
		// All lossy, bulk copy is safe and simpler.
		args = append(args, "-c:a", "copy")
	} else {
		for i, as := range audioStreams {
			if isLossless(as.CodecName) || isDTSHD(as.CodecName, as.Profile) {
				channels := as.Channels
				if channels == 0 {
					channels = 2
				}
				if channels >= 3 {
					args = append(args, fmt.Sprintf("-c:a:%d", i), "aac", fmt.Sprintf("-b:a:%d", i), "640k")
				} else {
					args = append(args, fmt.Sprintf("-c:a:%d", i), "libopus", fmt.Sprintf("-b:a:%d", i), "192k")
				}
			} else {
				args = append(args, fmt.Sprintf("-c:a:%d", i), "copy")
			}
		}
	}

	args = append(args,
		"-c:s", "copy",
		"-progress", "pipe:1", "-nostats",
		"-f", "matroska", workfile,
	)

	return args
}

// Run spawns the encode child and streams its stdout progress lines. Every
// frame=N line invokes onFrame with the parsed count. A non-zero exit returns
// an error carrying the last 600 bytes of the child's stderr.
func (e *Encoder) Run(ctx context.Context, args []string, onFrame func(int64)) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}

	e.logger.Debug("starting encoder", slog.String("cmd", e.ffmpegPath+" "+strings.Join(args, " ")))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "frame=") {
			continue
		}
		frame, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "frame=")), 10, 64)
		if err != nil {
			continue
		}
		if onFrame != nil {
			onFrame(frame)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg exited with error: %w: %s", err, stderr.String())
	}

	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
