package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestOfMatchesSHA256(t *testing.T) {
	content := []byte("Hello, world!")
	d := Of(content)
	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])
	if d.Hash != want {
		t.Errorf("Of(%q).Hash = %s, want %s", content, d.Hash, want)
	}
	if d.SizeBytes != int64(len(content)) {
		t.Errorf("SizeBytes = %d, want %d", d.SizeBytes, len(content))
	}
}

func TestOfReaderMatchesOf(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 5000)
	want := Of(data)
	got, err := OfReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OfReader: %v", err)
	}
	if got != want {
		t.Errorf("OfReader = %+v, want %+v", got, want)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	d := Of([]byte("round trip me"))
	raw, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != d {
		t.Errorf("round trip = %+v, want %+v", got, d)
	}
}

func TestUnmarshalRejectsBadLength(t *testing.T) {
	if _, err := Unmarshal([]byte("too short")); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestValid(t *testing.T) {
	d := Of([]byte("x"))
	if !Valid(d.Hash) {
		t.Error("computed digest hash should be valid")
	}
	if Valid("not-hex") {
		t.Error("non-hex string should be invalid")
	}
	if Valid(strings.Repeat("a", 63)) {
		t.Error("wrong-length hex string should be invalid")
	}
}

func TestShard(t *testing.T) {
	d := Digest{Hash: "ab" + strings.Repeat("c", 62)}
	dir, file := d.Shard()
	if dir != "ab" || len(file) != 62 {
		t.Errorf("Shard() = (%q, %q)", dir, file)
	}
}
