package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/javanhut/ivaldi-cas/internal/digest"
)

// teeDigester writes everything it reads through Write into both a
// running SHA-256 hash and an underlying file, so AddFile can stage and
// hash a source file in a single pass.
type teeDigester struct {
	w   io.Writer
	n   int64
	sum interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func newTeeDigester(w io.Writer) *teeDigester {
	return &teeDigester{w: w, sum: sha256.New()}
}

func (t *teeDigester) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		return n, err
	}
	t.sum.Write(p[:n])
	t.n += int64(n)
	return n, nil
}

func (t *teeDigester) digest() digest.Digest {
	return digest.Digest{Hash: hex.EncodeToString(t.sum.Sum(nil)), SizeBytes: t.n}
}

// timeNow is the single indirection point for "the current time" in
// this package, kept separate so touch-related code reads as an
// explicit policy rather than a scattered time.Now().
func timeNow() time.Time {
	return time.Now()
}
