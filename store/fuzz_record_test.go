package store

import (
	"bytes"
	"testing"
	"time"
)

// FuzzDecodeCachedProfile feeds arbitrary bytes to the profile decoder.
// Goal: no panics; anything that decodes re-encodes to identical bytes.
func FuzzDecodeCachedProfile(f *testing.F) {
	valid, _ := EncodeCachedProfile(CachedProfile{Profile: []byte(`{"id":"1"}`), CachedAt: time.Unix(10, 0)})
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 'x'})
	f.Add(append(valid, 0))

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := DecodeCachedProfile(data)
		if err != nil {
			return
		}
		encoded, err := EncodeCachedProfile(p)
		if err != nil {
			t.Fatalf("EncodeCachedProfile failed after successful decode: %v", err)
		}
		if !bytes.Equal(encoded, data) {
			t.Fatalf("roundtrip mismatch:\n in  %x\n out %x", data, encoded)
		}
	})
}

func TestDecodeFailureWindowRejectsWrongSize(t *testing.T) {
	w := FailureWindow{Count: 3, First: time.Unix(0, 42)}
	got, err := DecodeFailureWindow(EncodeFailureWindow(w))
	if err != nil || got.Count != 3 || !got.First.Equal(w.First) {
		t.Fatalf("unexpected window %+v err=%v", got, err)
	}
	if _, err := DecodeFailureWindow(EncodeFailureWindow(w)[:12]); err == nil {
		t.Fatal("expected truncated window to be rejected")
	}
}
