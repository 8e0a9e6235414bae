package classifier

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/spacesaver/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		codec      string
		format     string
		resolution string
		framerate  string
	}{
		{
			name:       "typical release",
			filename:   "Some.Movie.2019.1080p.BluRay.x265.10bit.mkv",
			codec:      "h265",
			format:     "10bit",
			resolution: "1920x1080",
			framerate:  models.Unknown,
		},
		{
			name:       "h264 720p",
			filename:   "Show.S01E02.720p.WEB-DL.h264.mkv",
			codec:      "h264",
			format:     models.Unknown,
			resolution: "1280x720",
			framerate:  models.Unknown,
		},
		{
			name:       "hevc hdr 4k",
			filename:   "Another.Film.2160p.UHD.HDR10.HEVC.mkv",
			codec:      "hevc",
			format:     "hdr10",
			resolution: "3840x2160",
			framerate:  models.Unknown,
		},
		{
			name:       "framerate in name",
			filename:   "Concert.1080p.60fps.x264.mp4",
			codec:      "h264",
			format:     models.Unknown,
			resolution: "1920x1080",
			framerate:  "60",
		},
		{
			name:       "nothing recognisable",
			filename:   "home video.mov",
			codec:      models.Unknown,
			format:     models.Unknown,
			resolution: models.Unknown,
			framerate:  models.Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.filename)
			assert.Equal(t, tt.codec, got.Codec)
			assert.Equal(t, tt.format, got.Format)
			assert.Equal(t, tt.resolution, got.Resolution)
			assert.Equal(t, tt.framerate, got.Framerate)
			// SAR and DAR never come from file names.
			assert.Equal(t, models.Unknown, got.SAR)
			assert.Equal(t, models.Unknown, got.DAR)
		})
	}
}

func TestClassifyNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"...",
		"日本語のファイル名.mkv",
		strings.Repeat("a", 4096),
		"weird\x00bytes.mkv",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { Classify(input) })
		assert.NotPanics(t, func() { CleanName(input) })
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{
			name:     "truncates at year",
			filename: "Some.Movie.2019.1080p.BluRay.x265-GROUP.mkv",
			want:     "Some Movie",
		},
		{
			name:     "strips url watermark",
			filename: "www.example.com - Some.Movie.2019.1080p.mkv",
			want:     "Some Movie",
		},
		{
			name:     "junk tokens without year",
			filename: "Show.Name.1080p.WEBRip.x264.mkv",
			want:     "Show Name",
		},
		{
			name:     "brackets removed",
			filename: "[Group] Some Show - 01 [1080p].mkv",
			want:     "Group Some Show 01",
		},
		{
			name:     "plain name title cased",
			filename: "my holiday video.mp4",
			want:     "My Holiday Video",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanName(tt.filename))
		})
	}
}

func TestCleanNameIdempotent(t *testing.T) {
	inputs := []string{
		"Some.Movie.2019.1080p.BluRay.x265-GROUP.mkv",
		"Show.Name.1080p.WEBRip.x264.mkv",
		"my holiday video.mp4",
	}
	for _, input := range inputs {
		once := CleanName(input)
		assert.Equal(t, once, CleanName(once))
	}
}

func TestCleanNameBoundsLength(t *testing.T) {
	long := strings.Repeat("Word ", 60) + ".mkv"
	got := CleanName(long)
	assert.LessOrEqual(t, len(got), 120)
	assert.NotEmpty(t, got)
}

func TestCleanNameTruncatesOnRuneBoundary(t *testing.T) {
	// Multi-byte titles must never be cut mid-rune.
	long := strings.Repeat("é", 200) + ".mkv"
	got := CleanName(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 120)
	assert.NotEmpty(t, got)

	spaced := strings.Repeat("Café ", 50) + ".mkv"
	got = CleanName(spaced)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 120)
	assert.True(t, strings.HasSuffix(got, "Café"))
}
