// Package digest computes BLAKE3 content digests of merged output.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/pithecene-io/seam/iox"
)

// Size is the digest length in bytes.
const Size = 32

// Reader returns the hex BLAKE3-256 digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the hex digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	defer iox.DiscardClose(f)

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return sum, nil
}

// Files returns the hex digest of the ordered concatenation of the given
// files. A directory-mode merge hashed segment by segment yields the same
// digest as the equivalent file-mode output.
func Files(paths []string) (string, error) {
	h := blake3.New()
	for _, p := range paths {
		if err := appendFile(h, p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	defer iox.DiscardClose(f)

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("digest %s: %w", path, err)
	}
	return nil
}
