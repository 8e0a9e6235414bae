package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoProbe(codec string, height int) *ProbeResult {
	return &ProbeResult{
		Streams: []ProbeStream{
			{CodecType: "video", CodecName: codec, Width: height * 16 / 9, Height: height},
		},
	}
}

func TestBuildArgsBaseline(t *testing.T) {
	e := NewEncoder("ffmpeg", "slow", nil)
	probe := videoProbe("h264", 1080)
	probe.Streams = append(probe.Streams, ProbeStream{CodecType: "audio", CodecName: "aac", Channels: 2})

	args := e.BuildArgs("/media/in.mkv", "/work/out.mkv", 22, 0, probe)

	want := []string{
		"-y", "-loglevel", "error",
		"-i", "/media/in.mkv",
		"-map", "0:v?", "-map", "0:a?", "-map", "0:s?",
		"-c:v", "libx265", "-crf", "22", "-preset", "slow",
		"-x265-params", "log-level=error",
		"-c:a", "copy",
		"-c:s", "copy",
		"-progress", "pipe:1", "-nostats",
		"-f", "matroska", "/work/out.mkv",
	}
	assert.Equal(t, want, args)
}

func TestBuildArgsScaleOnlyAboveCap(t *testing.T) {
	e := NewEncoder("ffmpeg", "slow", nil)

	args := e.BuildArgs("/media/in.mkv", "/work/out.mkv", 22, 1080, videoProbe("h264", 2160))
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-vf scale=-2:1080")

	// At or below the cap: no scaling.
	args = e.BuildArgs("/media/in.mkv", "/work/out.mkv", 22, 1080, videoProbe("h264", 1080))
	assert.NotContains(t, strings.Join(args, " "), "-vf")

	// Cap disabled: no scaling regardless of height.
	args = e.BuildArgs("/media/in.mkv", "/work/out.mkv", 22, 0, videoProbe("h264", 2160))
	assert.NotContains(t, strings.Join(args, " "), "-vf")
}

func TestBuildArgsAudioDirectives(t *testing.T) {
	e := NewEncoder("ffmpeg", "slow", nil)

	t.Run("all lossy bulk copy", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "ac3", Channels: 6},
			ProbeStream{CodecType: "audio", CodecName: "aac", Channels: 2},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a copy")
		assert.NotContains(t, joined, "-c:a:0")
	})

	t.Run("lossless surround to aac", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "truehd", Channels: 8},
			ProbeStream{CodecType: "audio", CodecName: "ac3", Channels: 6},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a:0 aac -b:a:0 640k")
		assert.Contains(t, joined, "-c:a:1 copy")
	})

	t.Run("lossless stereo to opus", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "flac", Channels: 2},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a:0 libopus -b:a:0 192k")
	})

	t.Run("dts hd ma is lossless", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "dts", Profile: "DTS-HD MA", Channels: 6},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a:0 aac -b:a:0 640k")
	})

	t.Run("plain dts is lossy", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "dts", Profile: "DTS", Channels: 6},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a copy")
	})

	t.Run("pcm prefix is lossless", func(t *testing.T) {
		probe := videoProbe("h264", 1080)
		probe.Streams = append(probe.Streams,
			ProbeStream{CodecType: "audio", CodecName: "pcm_s24le", Channels: 2},
		)
		joined := strings.Join(e.BuildArgs("/in.mkv", "/out.mkv", 22, 0, probe), " ")
		assert.Contains(t, joined, "-c:a:0 libopus -b:a:0 192k")
	})
}

// fakeEncoder writes a shell script standing in for ffmpeg.
func fakeEncoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestRunStreamsFrames(t *testing.T) {
	bin := fakeEncoder(t, `
echo "frame=10"
echo "fps=23.9"
echo "frame=20"
echo "frame=30"
exit 0
`)
	e := NewEncoder(bin, "slow", nil)

	var frames []int64
	err := e.Run(context.Background(), nil, func(n int64) { frames = append(frames, n) })
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, frames)
}

func TestRunFailureCarriesStderrTail(t *testing.T) {
	bin := fakeEncoder(t, `
echo "frame=5"
echo "something went badly wrong" >&2
exit 1
`)
	e := NewEncoder(bin, "slow", nil)

	err := e.Run(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "something went badly wrong")
}

func TestRunCancellation(t *testing.T) {
	bin := fakeEncoder(t, `
echo "frame=1"
sleep 30
`)
	e := NewEncoder(bin, "slow", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		cancel()
	}()

	err := e.Run(ctx, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 10}
	_, err := tb.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "6789abcdef", tb.String())
}
