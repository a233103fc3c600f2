// Package digest implements the (hash, size) pair that names every blob
// in the CAS, and its fixed-width serialization.
//
// A Digest is computed by streaming SHA-256 over the source bytes in
// small chunks (mirroring the teacher's add_object and
// buildstream's CASCache.add_object) rather than buffering the whole
// input, so callers can hash arbitrarily large files without holding
// them in memory twice.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// chunkSize is the read size used when streaming content through the
// hash function; matches the 4 KiB chunking described in the spec.
const chunkSize = 4096

// Digest names a blob by the hex SHA-256 of its content and its length
// in bytes. Two blobs with equal Digests are defined to have equal
// content.
type Digest struct {
	Hash       string
	SizeBytes  int64
}

// String renders the digest as "<hash>/<size>", useful for logging.
func (d Digest) String() string {
	return fmt.Sprintf("%s/%d", d.Hash, d.SizeBytes)
}

// IsZero reports whether d is the zero value, used the way the teacher
// uses a zero Hash to mean "no tree" when diffing an absent side.
func (d Digest) IsZero() bool {
	return d.Hash == "" && d.SizeBytes == 0
}

// Shard splits the hash into the two-character directory prefix and the
// remaining filename, per the sharding scheme in spec §6.
func (d Digest) Shard() (dir, file string) {
	return d.Hash[:2], d.Hash[2:]
}

// Of computes the Digest of an in-memory byte buffer.
func Of(data []byte) Digest {
	sum := sha256.Sum256(data)
	return Digest{Hash: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data))}
}

// OfReader streams r through SHA-256 in chunkSize reads and returns its
// Digest, whose SizeBytes is the number of bytes consumed.
func OfReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.CopyBuffer(h, r, make([]byte, chunkSize))
	if err != nil {
		return Digest{}, fmt.Errorf("digest: read source: %w", err)
	}
	return Digest{Hash: hex.EncodeToString(h.Sum(nil)), SizeBytes: n}, nil
}

// Valid reports whether hash looks like a well-formed lowercase hex
// SHA-256 digest.
func Valid(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// --- Fixed-width record serialization ---
//
// Every ref file and every directory entry's digest field serializes
// the same record: the 64-character hex hash followed by an unsigned
// 64-bit big-endian size. This is the "external IDL" schema spec §6
// allows implementations to substitute, provided it stays
// byte-identical across equivalent content and is shared by every
// implementation reading a given store.

// recordSize is the serialized length of a Digest record: 64 ASCII hex
// bytes for the hash plus 8 bytes for the size.
const recordSize = 64 + 8

// Marshal encodes d as its fixed-width record.
func (d Digest) Marshal() ([]byte, error) {
	if len(d.Hash) != 64 {
		return nil, fmt.Errorf("digest: marshal: hash must be 64 hex characters, got %d", len(d.Hash))
	}
	buf := make([]byte, recordSize)
	copy(buf, d.Hash)
	binary.BigEndian.PutUint64(buf[64:], uint64(d.SizeBytes))
	return buf, nil
}

// Unmarshal decodes a Digest record previously produced by Marshal.
func Unmarshal(data []byte) (Digest, error) {
	if len(data) != recordSize {
		return Digest{}, fmt.Errorf("digest: unmarshal: expected %d bytes, got %d", recordSize, len(data))
	}
	hash := string(data[:64])
	if !Valid(hash) {
		return Digest{}, fmt.Errorf("digest: unmarshal: invalid hash %q", hash)
	}
	size := binary.BigEndian.Uint64(data[64:])
	return Digest{Hash: hash, SizeBytes: int64(size)}, nil
}
