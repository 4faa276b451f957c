package delta

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		src, target []byte
	}{
		{"empty target", []byte("0123456789abcdef0123456789abcdef"), nil},
		{"identical", []byte("the quick brown fox jumps over the lazy dog"), []byte("the quick brown fox jumps over the lazy dog")},
		{"small source", []byte("short"), []byte("a completely different and longer target string")},
		{"single byte change", bytes.Repeat([]byte("0123456789abcdef"), 8), append(append([]byte{}, bytes.Repeat([]byte("0123456789abcdef"), 8)...), 'X')},
		{"prepend", []byte("0123456789abcdef0123456789abcdef"), []byte("XX0123456789abcdef0123456789abcdef")},
		{"append", []byte("0123456789abcdef0123456789abcdef"), []byte("0123456789abcdef0123456789abcdefYY")},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := Encode(c.src, c.target)
			got, err := Decode(c.src, d)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, c.target) {
				t.Fatalf("round trip mismatch: got %q, want %q", got, c.target)
			}
		})
	}
}

func TestEncodeSizeCeiling(t *testing.T) {
	src := make([]byte, 2048)
	target := make([]byte, 2048)
	r := rand.New(rand.NewSource(1))
	r.Read(src)
	copy(target, src)
	for i := 0; i < 64; i++ {
		target[r.Intn(len(target))] = byte(r.Intn(256))
	}

	d := Encode(src, target)
	if len(d) > len(target)+60 {
		t.Fatalf("delta length %d exceeds target+60 (%d)", len(d), len(target)+60)
	}

	got, err := Decode(src, d)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("round trip mismatch after random mutation")
	}
}

func TestEncodeBlobFromSpecScenarioS5(t *testing.T) {
	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i % 256)
	}
	target := make([]byte, 512)
	copy(target, src)
	for i := 100; i < 116; i++ {
		target[i] = 0
	}

	d := Encode(src, target)
	if len(d) >= len(target) {
		t.Fatalf("expected delta shorter than target, got %d bytes for a %d-byte target", len(d), len(target))
	}

	got, err := Decode(src, d)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("round trip mismatch")
	}
}

func TestChecksumMatchesByteStrideReference(t *testing.T) {
	data := []byte("0123456789abcdef0123456789abcdef012")
	got := Checksum(data)
	if got == 0 {
		t.Fatalf("Checksum returned 0 for non-empty input")
	}
	// Checksum must be deterministic.
	if got != Checksum(data) {
		t.Fatalf("Checksum not deterministic")
	}
	// Reference: the sum of the input read as big-endian 32-bit words,
	// the final partial word zero-padded.
	var want uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		want += uint32(word[0])<<24 | uint32(word[1])<<16 | uint32(word[2])<<8 | uint32(word[3])
	}
	if got != want {
		t.Fatalf("Checksum = %#x, byte-stride reference = %#x", got, want)
	}
}

func TestDigitCountMatchesPutIntLength(t *testing.T) {
	cases := []uint32{0, 1, 63, 64, 65, 4095, 4096, 1 << 20}
	for _, v := range cases {
		n := digitCount(v)
		encoded := putInt(nil, v)
		if len(encoded) != n {
			t.Errorf("digitCount(%d) = %d, but putInt produced %d bytes", v, n, len(encoded))
		}
	}
}
