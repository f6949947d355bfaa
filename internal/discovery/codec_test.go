package discovery

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	ports := []uint16{0, 1, 1337, 9000, 65535}
	for _, port := range ports {
		b := EncodeRequest(port)
		if len(b) != 8 {
			t.Fatalf("port %d: encoded length %d, want 8", port, len(b))
		}
		got, err := DecodeRequest(b)
		if err != nil {
			t.Fatalf("port %d: decode: %v", port, err)
		}
		if got != port {
			t.Errorf("round trip: got %d, want %d", got, port)
		}
	}
}

func TestEncodeRequestBytes(t *testing.T) {
	got := EncodeRequest(9000)
	want := append([]byte("POKEME"), 0x23, 0x28)
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("POKEME\x05")},
		{"long", []byte("POKEME\x00\x05\x00")},
		{"bad magic", []byte("PEEKME\x00\x05")},
		{"magic only", []byte("POKEME")},
	}
	for _, tt := range tests {
		if _, err := DecodeRequest(tt.data); err == nil {
			t.Errorf("%s: decode accepted % x", tt.name, tt.data)
		}
	}
}
