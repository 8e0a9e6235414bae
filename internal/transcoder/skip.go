// Package transcoder implements the encode pipeline: the skip oracle, the
// admission layer, and the single-worker encode loop.
package transcoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/spacesaver/internal/ffmpeg"
)

// pixels1080p is the reference pixel count bitrates are normalised to.
const pixels1080p = 1920 * 1080

// hevcCodecs are source codecs already in the target family; re-encoding
// would only lose quality.
var hevcCodecs = map[string]bool{
	"hevc": true,
	"h265": true,
}

// crfBitrateTable maps CRF to the highest bitrate (kbps at 1080p) libx265 is
// expected to produce at that quality. Sources already below the threshold
// would grow or stay the same after an encode.
var crfBitrateTable = map[int]int{
	16: 8000,
	18: 5500,
	20: 3800,
	22: 2500,
	24: 1700,
	26: 1200,
	28: 800,
}

// bitrateThreshold returns the 1080p bitrate ceiling in kbps for a CRF value.
// CRFs between table rows interpolate linearly; CRFs outside the range clamp
// to the nearest end.
func bitrateThreshold(crf int) int {
	if kbps, ok := crfBitrateTable[crf]; ok {
		return kbps
	}

	crfs := make([]int, 0, len(crfBitrateTable))
	for k := range crfBitrateTable {
		crfs = append(crfs, k)
	}
	sort.Ints(crfs)

	if crf < crfs[0] {
		return crfBitrateTable[crfs[0]]
	}
	if crf > crfs[len(crfs)-1] {
		return crfBitrateTable[crfs[len(crfs)-1]]
	}

	lower, upper := crfs[0], crfs[len(crfs)-1]
	for _, k := range crfs {
		if k <= crf {
			lower = k
		}
	}
	for i := len(crfs) - 1; i >= 0; i-- {
		if crfs[i] >= crf {
			upper = crfs[i]
		}
	}

	lo, hi := crfBitrateTable[lower], crfBitrateTable[upper]
	ratio := float64(crf-lower) / float64(upper-lower)
	return lo + int(ratio*float64(hi-lo))
}

// ShouldSkip decides whether encoding a file would be wasteful. Returns the
// decision and a human-readable reason when skipping.
//
// A file needing a downscale is never skipped; an already-HEVC source always
// is; otherwise the container bitrate, normalised to 1080p over the largest
// video stream, is compared against the CRF threshold.
func ShouldSkip(probe *ffmpeg.ProbeResult, crf, resCap int) (bool, string) {
	videoStreams := probe.VideoStreams()

	maxHeight := 0
	for _, vs := range videoStreams {
		if vs.Height > maxHeight {
			maxHeight = vs.Height
		}
	}
	if resCap > 0 && maxHeight > resCap {
		return false, ""
	}

	for _, vs := range videoStreams {
		if hevcCodecs[strings.ToLower(vs.CodecName)] {
			return true, "source is already HEVC/H.265"
		}
	}

	sourceKbps := probe.BitrateKbps()
	if sourceKbps > 0 {
		maxPixels := pixels1080p
		if len(videoStreams) > 0 {
			maxPixels = 0
			for _, vs := range videoStreams {
				width, height := vs.Width, vs.Height
				if width == 0 {
					width = 1920
				}
				if height == 0 {
					height = 1080
				}
				if width*height > maxPixels {
					maxPixels = width * height
				}
			}
		}
		if maxPixels < 1 {
			maxPixels = 1
		}

		normalisedKbps := sourceKbps * pixels1080p / maxPixels
		threshold := bitrateThreshold(crf)
		if normalisedKbps < threshold {
			return true, fmt.Sprintf(
				"source bitrate %d kbps (~%d kbps @1080p) already below CRF %d threshold %d kbps",
				sourceKbps, normalisedKbps, crf, threshold,
			)
		}
	}

	return false, ""
}
