package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go-civitai-fetch/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	mixedSeparatorRegex = regexp.MustCompile(`[-_]*-[-_]*`)
	underscoreRunRegex  = regexp.MustCompile(`_+`)
)

// ConvertToSlug sanitizes a string for use as a file or directory name.
// Spaces become underscores, colons become dashes, and any other
// non-alphanumeric characters (except dots, dashes and underscores) are
// dropped.
func ConvertToSlug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		case r == ':':
			b.WriteRune('-')
		}
	}
	slug := underscoreRunRegex.ReplaceAllString(b.String(), "_")
	slug = mixedSeparatorRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-_")
}

// BytesToSize renders a byte count as a human readable string.
func BytesToSize(bytes uint64) string {
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	if bytes == 0 {
		return "0B"
	}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", size, units[i])
}

// CheckAndMakeDir ensures a directory exists, creating it (and parents) if
// needed. MkdirAll is a no-op for existing directories, so concurrent
// callers creating sibling paths are safe.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// SanitizePath cleans a path, strips any parent-directory traversal and
// removes a leading slash, yielding a path safe to join under a root.
func SanitizePath(path string) string {
	cleaned := filepath.Clean(path)
	cleaned = strings.ReplaceAll(cleaned, "..", "")
	cleaned = filepath.Clean(cleaned)
	return strings.TrimPrefix(cleaned, "/")
}

// HashesProvided reports whether at least one verifiable hash is present.
func HashesProvided(h models.Hashes) bool {
	return h.SHA256 != "" || h.BLAKE3 != "" || h.CRC32 != ""
}

// CheckHash verifies a file on disk against the provided hashes. The
// strongest available hash wins: SHA256, then BLAKE3, then CRC32. Returns
// false when no verifiable hash is present or the file cannot be read.
func CheckHash(path string, hashes models.Hashes) bool {
	f, err := os.Open(path) // #nosec G304 -- path derives from config-rooted destinations
	if err != nil {
		log.WithError(err).Warnf("Could not open %s for hash verification", path)
		return false
	}
	defer f.Close()

	switch {
	case hashes.SHA256 != "":
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return false
		}
		return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), hashes.SHA256)
	case hashes.BLAKE3 != "":
		h := blake3.New()
		if _, err := io.Copy(h, f); err != nil {
			return false
		}
		return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), hashes.BLAKE3)
	case hashes.CRC32 != "":
		h := crc32.NewIEEE()
		if _, err := io.Copy(h, f); err != nil {
			return false
		}
		return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), hashes.CRC32)
	}
	return false
}

// CounterWriter wraps an io.Writer and counts bytes written through it.
// OnWrite, when set, is invoked with the size of each chunk.
type CounterWriter struct {
	Writer  io.Writer
	OnWrite func(n int)
	Total   uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	if cw.OnWrite != nil && n > 0 {
		cw.OnWrite(n)
	}
	return n, err
}
