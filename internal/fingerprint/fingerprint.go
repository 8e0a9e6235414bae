// Package fingerprint identifies media files by a fast, stable content hash.
//
// The hash covers the first 64 KiB of content plus the decimal file size.
// This is intentionally not a full-file hash: media files are large and the
// header plus size is stable enough for dedup when paired with the path.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// SampleBytes is how much leading content is hashed.
const SampleBytes = 64 * 1024

// Compute returns the hex SHA-256 of the first 64 KiB of the file plus its
// size. Truncated copies of the same file hash differently.
func Compute(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stating file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, SampleBytes); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading file header: %w", err)
	}
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))

	return hex.EncodeToString(h.Sum(nil)), nil
}
