// Package classifier derives declared metadata and a display title from a
// media file name. Everything here is a pure function over strings: no
// filesystem access, no probing, and a parse failure on one field never
// affects the others.
package classifier

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jmylchreest/spacesaver/internal/models"
)

// maxTitleLength bounds the cleaned display title.
const maxTitleLength = 120

var (
	// Year: 4-digit number in the 1900s or 2000s.
	yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	resolutionRe = regexp.MustCompile(`(?i)\b(2160p|1080p|1080i|720p|576p|480p|4k|uhd)\b`)

	codecRe = regexp.MustCompile(`(?i)\b(hevc|x265|x264|h\.?264|h\.?265|avc|xvid|divx|av1|vp9|vp8)\b`)

	formatRe = regexp.MustCompile(`(?i)\b(10[._-]?bit|8bit|12bit|hdr10\+|hdr10|hdr|dolby[._\s]?vision|dv|hlg)\b`)

	framerateRe = regexp.MustCompile(`(?i)\b(\d{2}(?:\.\d{1,2})?)\s*fps\b`)

	// Website watermark prefixes: "www.example.com - Title".
	urlWatermarkRe = regexp.MustCompile(`(?i)^(?:www\.[\w\-]+\.\w{2,6}|[\w\-]+\.(?:com|net|org|io|tv|me))[\s._\-]*(?:-\s*)?`)

	// Separator-delimited watermark: "SomeGroup - Actual Title".
	leadingTagRe = regexp.MustCompile(`^[\w.\s]{1,40}\s+-\s+`)

	// Junk tokens stripped from titles without a year marker.
	junkTokensRe = regexp.MustCompile(`(?i)\b(` +
		// Resolution
		`2160p|1080p|1080i|720p|576p|480p|4k|uhd` +
		// HDR
		`|hdr10\+|hdr10|hdr|dolby[._\s]?vision|dv|hlg` +
		// Source
		`|blu[._\-]?ray|bluray|bdrip|bdremux|bdmux` +
		`|web[._\-]?dl|webrip|web|amzn|nf|hmax|dsnp|atvp|pcok` +
		`|hdtv|dvdrip|dvdscr|dvd|ts|cam|r5|scr` +
		// Video codec
		`|hevc|x265|x264|h264|h265|avc|xvid|divx|av1|vp9|vp8` +
		`|10[._\-]?bit|8bit|12bit|hq` +
		// Audio codec
		`|aac|dts|truehd|atmos|dd5\.1|dd2\.0|ac3|eac3|opus|flac|mp3|lpcm|pcm` +
		`|dolby[._\s]?digital|dolby[._\s]?atmos|dolby` +
		// Release type
		`|remux|repack|proper|extended|theatrical|directors[._\s]?cut|unrated|retail` +
		`|internal|limited|complete|season|episode` +
		// Common release groups
		`|yts|yify|rarbg|eztv|ettv|mkvcage|sparks|fgt|ntb|ion10` +
		`|tigole|qxr|bhdstudio|framestor|cinemageddon` +
		// Generic noise
		`|sample|trailer|featurette|extras?` +
		`)\b`)

	punctRe      = regexp.MustCompile(`[.\-_]+`)
	bracketsRe   = regexp.MustCompile(`[\[\](){}<>]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	titleCaser = cases.Title(language.Und)
)

// Classify parses a raw file name into declared metadata. It never panics and
// never returns an empty result: fields that fail to parse keep the Unknown
// sentinel. SAR and DAR practically never appear in file names and stay
// Unknown.
func Classify(filename string) models.DeclaredMetadata {
	declared := models.NewDeclaredMetadata()
	declared.Codec = extractCodec(filename)
	declared.Format = extractFormat(filename)
	declared.Resolution = extractResolution(filename)
	declared.Framerate = extractFramerate(filename)
	return declared
}

func extractCodec(filename string) string {
	m := codecRe.FindStringSubmatch(filename)
	if m == nil {
		return models.Unknown
	}
	raw := strings.ToLower(m[1])
	switch raw {
	case "x265", "h.265":
		return "h265"
	case "x264", "h.264":
		return "h264"
	}
	return raw
}

func extractFormat(filename string) string {
	m := formatRe.FindStringSubmatch(filename)
	if m == nil {
		return models.Unknown
	}
	raw := strings.ToLower(m[1])
	replacer := strings.NewReplacer(".", "", "-", "", "_", "", " ", "")
	return replacer.Replace(raw)
}

func extractResolution(filename string) string {
	m := resolutionRe.FindStringSubmatch(filename)
	if m == nil {
		return models.Unknown
	}
	switch strings.ToLower(m[1]) {
	case "2160p", "4k", "uhd":
		return "3840x2160"
	case "1080p", "1080i":
		return "1920x1080"
	case "720p":
		return "1280x720"
	case "576p":
		return "720x576"
	case "480p":
		return "720x480"
	}
	return strings.ToLower(m[1])
}

func extractFramerate(filename string) string {
	m := framerateRe.FindStringSubmatch(filename)
	if m == nil {
		return models.Unknown
	}
	return m[1]
}

// stripWatermark removes website or release-group watermarks that appear
// before the real title.
func stripWatermark(text string) string {
	cleaned := strings.TrimSpace(urlWatermarkRe.ReplaceAllString(text, ""))
	if cleaned != text {
		return cleaned
	}
	if loc := leadingTagRe.FindStringIndex(text); loc != nil {
		candidate := strings.TrimSpace(text[loc[1]:])
		if len(candidate) >= 3 {
			return candidate
		}
	}
	return text
}

// CleanName turns a raw file name into a human-readable title: watermarks and
// brackets stripped, punctuation flattened, everything after the first year
// dropped (or junk tokens removed when there is no year), then title-cased
// and bounded to 120 characters.
func CleanName(raw string) string {
	name := filepath.Base(raw)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	name = stripWatermark(name)
	name = punctRe.ReplaceAllString(name, " ")
	name = bracketsRe.ReplaceAllString(name, " ")

	if loc := yearRe.FindStringIndex(name); loc != nil {
		name = strings.TrimSpace(name[:loc[0]])
	} else {
		name = junkTokensRe.ReplaceAllString(name, "")
	}

	name = strings.Trim(multiSpaceRe.ReplaceAllString(name, " "), " -_.")

	result := strings.TrimSpace(raw)
	if name != "" {
		result = titleCaser.String(name)
	}

	if runes := []rune(result); len(runes) > maxTitleLength {
		truncated := string(runes[:maxTitleLength])
		if idx := strings.LastIndex(truncated, " "); idx > 0 {
			truncated = truncated[:idx]
		}
		result = truncated
	}

	return result
}
