// Package treecodec implements the canonical serialization of a
// directory listing: the files/directories/symlinks record described
// in spec §4.2.1. A serialized Directory is itself stored as a blob in
// the object store, named by its own digest.
//
// Canonical encoding (version 1, fixed field order, explicit lengths):
//
//	uvarint(len(Files))
//	for each file, in sorted Name order:
//	  uvarint(len(Name)); Name bytes
//	  64 bytes hash; 8 bytes size   (Digest record, ASCII hex + big-endian uint64)
//	  1 byte: 1 if executable else 0
//	uvarint(len(Directories))
//	for each dir, in sorted Name order:
//	  uvarint(len(Name)); Name bytes
//	  64 bytes hash; 8 bytes size
//	uvarint(len(Symlinks))
//	for each symlink, in sorted Name order:
//	  uvarint(len(Name)); Name bytes
//	  uvarint(len(Target)); Target bytes
//
// Two directories with identical (sorted) entry sets always produce
// byte-identical output, which is the property the GC and the diff
// short-circuit both rely on.
package treecodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/javanhut/ivaldi-cas/internal/digest"
)

// FileEntry is a regular-file child of a directory.
type FileEntry struct {
	Name         string
	Digest       digest.Digest
	IsExecutable bool
}

// DirEntry is a subdirectory child of a directory.
type DirEntry struct {
	Name   string
	Digest digest.Digest
}

// SymlinkEntry is a symbolic-link child of a directory.
type SymlinkEntry struct {
	Name   string
	Target string
}

// Directory is the in-memory form of a single directory level. The
// three sequences are name-disjoint and each individually sorted by
// Name; Sort enforces this before encoding.
type Directory struct {
	Files       []FileEntry
	Directories []DirEntry
	Symlinks    []SymlinkEntry
}

// Sort orders each of the three sequences by name, matching the
// sorted-name-order children that commit_directory produces from a
// sorted os.ReadDir listing.
func (d *Directory) Sort() {
	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Name < d.Files[j].Name })
	sort.Slice(d.Directories, func(i, j int) bool { return d.Directories[i].Name < d.Directories[j].Name })
	sort.Slice(d.Symlinks, func(i, j int) bool { return d.Symlinks[i].Name < d.Symlinks[j].Name })
}

// Marshal returns the canonical byte encoding of d. The three
// sequences must already be sorted (call Sort first); Marshal does not
// sort them itself so that callers who build entries in sorted order
// directly (as commit_directory does) pay no extra cost.
func (d *Directory) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	putString := func(s string) {
		putUvarint(uint64(len(s)))
		buf.WriteString(s)
	}
	putDigest := func(dg digest.Digest) error {
		rec, err := dg.Marshal()
		if err != nil {
			return err
		}
		buf.Write(rec)
		return nil
	}

	putUvarint(uint64(len(d.Files)))
	for _, f := range d.Files {
		putString(f.Name)
		if err := putDigest(f.Digest); err != nil {
			return nil, fmt.Errorf("treecodec: marshal file %q: %w", f.Name, err)
		}
		if f.IsExecutable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	putUvarint(uint64(len(d.Directories)))
	for _, sd := range d.Directories {
		putString(sd.Name)
		if err := putDigest(sd.Digest); err != nil {
			return nil, fmt.Errorf("treecodec: marshal dir %q: %w", sd.Name, err)
		}
	}

	putUvarint(uint64(len(d.Symlinks)))
	for _, sl := range d.Symlinks {
		putString(sl.Name)
		putString(sl.Target)
	}

	return buf.Bytes(), nil
}

// Unmarshal parses canonical directory bytes back into a Directory.
func Unmarshal(data []byte) (*Directory, error) {
	r := bytes.NewReader(data)

	readUvarint := func(field string) (uint64, error) {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return 0, fmt.Errorf("treecodec: read %s: %w", field, err)
		}
		return v, nil
	}
	readString := func(field string) (string, error) {
		n, err := readUvarint(field + " length")
		if err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := readFull(r, b); err != nil {
			return "", fmt.Errorf("treecodec: read %s: %w", field, err)
		}
		return string(b), nil
	}
	readDigestRecord := func() (digest.Digest, error) {
		// Digest.Marshal emits a fixed 64+8 byte record (hash + big
		// endian uint64 size); peel exactly that many bytes back off.
		b := make([]byte, 72)
		if _, err := readFull(r, b); err != nil {
			return digest.Digest{}, fmt.Errorf("treecodec: read digest: %w", err)
		}
		return digest.Unmarshal(b)
	}

	d := &Directory{}

	nFiles, err := readUvarint("file count")
	if err != nil {
		return nil, err
	}
	d.Files = make([]FileEntry, 0, nFiles)
	for i := uint64(0); i < nFiles; i++ {
		name, err := readString("file name")
		if err != nil {
			return nil, err
		}
		dg, err := readDigestRecord()
		if err != nil {
			return nil, err
		}
		execByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("treecodec: read executable flag: %w", err)
		}
		d.Files = append(d.Files, FileEntry{Name: name, Digest: dg, IsExecutable: execByte != 0})
	}

	nDirs, err := readUvarint("directory count")
	if err != nil {
		return nil, err
	}
	d.Directories = make([]DirEntry, 0, nDirs)
	for i := uint64(0); i < nDirs; i++ {
		name, err := readString("directory name")
		if err != nil {
			return nil, err
		}
		dg, err := readDigestRecord()
		if err != nil {
			return nil, err
		}
		d.Directories = append(d.Directories, DirEntry{Name: name, Digest: dg})
	}

	nSyms, err := readUvarint("symlink count")
	if err != nil {
		return nil, err
	}
	d.Symlinks = make([]SymlinkEntry, 0, nSyms)
	for i := uint64(0); i < nSyms; i++ {
		name, err := readString("symlink name")
		if err != nil {
			return nil, err
		}
		target, err := readString("symlink target")
		if err != nil {
			return nil, err
		}
		d.Symlinks = append(d.Symlinks, SymlinkEntry{Name: name, Target: target})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("treecodec: %d trailing bytes after directory record", r.Len())
	}

	return d, nil
}

// FindDirectory returns the subdirectory entry named name, if present.
func (d *Directory) FindDirectory(name string) (DirEntry, bool) {
	for _, e := range d.Directories {
		if e.Name == name {
			return e, true
		}
	}
	return DirEntry{}, false
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, fmt.Errorf("unexpected eof")
		}
	}
	return n, nil
}
