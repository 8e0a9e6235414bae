package ffmpeg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/spacesaver/internal/models"
)

const sampleProbeJSON = `{
  "format": {
    "filename": "/media/in.mkv",
    "format_name": "matroska,webm",
    "duration": "120.5",
    "bit_rate": "8000000"
  },
  "streams": [
    {
      "index": 0,
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "pix_fmt": "yuv420p",
      "sample_aspect_ratio": "1:1",
      "display_aspect_ratio": "16:9",
      "r_frame_rate": "24000/1001",
      "duration": "120.5"
    },
    {
      "index": 1,
      "codec_type": "audio",
      "codec_name": "ac3",
      "channels": 6
    }
  ]
}`

// fakeProbe writes a shell script standing in for ffprobe that emits the
// given JSON on stdout.
func fakeProbe(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "probe.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(output), 0o644))
	binPath := filepath.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\ncat "+jsonPath+"\n"), 0o755))
	return binPath
}

func TestProbe(t *testing.T) {
	p := NewProber(fakeProbe(t, sampleProbeJSON), 5*time.Second, nil)

	result, err := p.Probe(context.Background(), "/media/in.mkv")
	require.NoError(t, err)

	require.Len(t, result.VideoStreams(), 1)
	require.Len(t, result.AudioStreams(), 1)
	assert.Equal(t, "h264", result.VideoStreams()[0].CodecName)
	assert.Equal(t, 120.5, result.Duration())
	assert.Equal(t, 8000, result.BitrateKbps())
}

func TestProbeBinaryMissing(t *testing.T) {
	p := NewProber(filepath.Join(t.TempDir(), "nope"), 5*time.Second, nil)
	_, err := p.Probe(context.Background(), "/media/in.mkv")
	assert.Error(t, err)
}

func TestActualMetadata(t *testing.T) {
	p := NewProber(fakeProbe(t, sampleProbeJSON), 5*time.Second, nil)

	meta := p.ActualMetadata(context.Background(), "uuid-1", "/media/in.mkv")
	require.NotNil(t, meta)
	assert.Equal(t, models.KindActual, meta.Kind)
	assert.Equal(t, "h264", meta.Codec)
	assert.Equal(t, "yuv420p", meta.Format)
	assert.Equal(t, "1920x1080", meta.Resolution)
	assert.Equal(t, "1:1", meta.SAR)
	assert.Equal(t, "16:9", meta.DAR)
	assert.InDelta(t, 23.976, meta.Framerate, 0.001)

	var extra map[string]any
	require.NoError(t, json.Unmarshal([]byte(meta.Extra), &extra))
	assert.Equal(t, 120.5, extra["duration"])
	assert.Equal(t, float64(8000000), extra["bitrate"])
}

func TestActualMetadataUndefinedAspectRatios(t *testing.T) {
	probeJSON := `{
  "format": {"duration": "10"},
  "streams": [
    {"codec_type": "video", "codec_name": "mpeg4", "width": 640, "height": 480,
     "sample_aspect_ratio": "0:1", "display_aspect_ratio": "0:1", "r_frame_rate": "25/1"}
  ]
}`
	p := NewProber(fakeProbe(t, probeJSON), 5*time.Second, nil)

	meta := p.ActualMetadata(context.Background(), "uuid-1", "/media/in.avi")
	assert.Equal(t, models.Unknown, meta.SAR)
	assert.Equal(t, models.Unknown, meta.DAR)
	assert.Equal(t, "640x480", meta.Resolution)
}

func TestActualMetadataProbeFailureReturnsDefaults(t *testing.T) {
	p := NewProber(filepath.Join(t.TempDir(), "nope"), time.Second, nil)

	meta := p.ActualMetadata(context.Background(), "uuid-1", "/media/in.mkv")
	require.NotNil(t, meta)
	assert.Equal(t, "uuid-1", meta.UUID)
	assert.Equal(t, models.Unknown, meta.Codec)
	assert.Equal(t, models.Unknown, meta.Resolution)
	assert.Zero(t, meta.Framerate)
	assert.Equal(t, "{}", meta.Extra)
}

func TestActualMetadataNoVideoStreams(t *testing.T) {
	probeJSON := `{"format": {"duration": "10"}, "streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`
	p := NewProber(fakeProbe(t, probeJSON), 5*time.Second, nil)

	meta := p.ActualMetadata(context.Background(), "uuid-1", "/media/in.mp3")
	assert.Equal(t, models.Unknown, meta.Codec)
}

func TestParseFramerate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFramerate("24000/1001"), 0.001)
	assert.Equal(t, 25.0, parseFramerate("25/1"))
	assert.Equal(t, 30.0, parseFramerate("30"))
	assert.Zero(t, parseFramerate("25/0"))
	assert.Zero(t, parseFramerate("garbage"))
	assert.Zero(t, parseFramerate(""))
}

func TestEstimateFrameTotal(t *testing.T) {
	t.Run("from stream durations", func(t *testing.T) {
		r := &ProbeResult{
			Streams: []ProbeStream{
				{CodecType: "video", RFrameRate: "25/1", Duration: "100"},
			},
		}
		assert.Equal(t, int64(2500), r.EstimateFrameTotal())
	})

	t.Run("fallback fps on bad rational", func(t *testing.T) {
		r := &ProbeResult{
			Streams: []ProbeStream{
				{CodecType: "video", RFrameRate: "bad", Duration: "10"},
			},
		}
		assert.Equal(t, int64(250), r.EstimateFrameTotal())
	})

	t.Run("fallback to container duration", func(t *testing.T) {
		r := &ProbeResult{
			Format: ProbeFormat{Duration: "60"},
			Streams: []ProbeStream{
				{CodecType: "video", RFrameRate: "25/1"},
			},
		}
		assert.Equal(t, int64(1500), r.EstimateFrameTotal())
	})

	t.Run("no usable information", func(t *testing.T) {
		r := &ProbeResult{}
		assert.Zero(t, r.EstimateFrameTotal())
	})
}
