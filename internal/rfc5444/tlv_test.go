package rfc5444

import (
	"bytes"
	"testing"
)

func TestTLVRoundTrip(t *testing.T) {
	ext := uint8(3)
	cases := []TLV{
		{Type: 1},
		{Type: 2, Value: []byte("x")},
		{Type: 3, TypeExt: &ext, Value: []byte{0x01, 0x02, 0x03}},
		{Type: 4, Value: bytes.Repeat([]byte{0xAB}, 300)}, // forces extended length
	}

	for _, tc := range cases {
		buf, err := tc.encode(nil)
		if err != nil {
			t.Fatalf("encode(%+v): %v", tc, err)
		}
		got, err := decodeTLV(newCursor(buf))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != tc.Type || !bytes.Equal(got.Value, tc.Value) {
			t.Errorf("roundtrip mismatch: got %+v, want %+v", got, tc)
		}
		if (got.TypeExt == nil) != (tc.TypeExt == nil) {
			t.Errorf("TypeExt presence mismatch: got %+v, want %+v", got, tc)
		}
	}
}

func TestTLVAddressIndex(t *testing.T) {
	start, stop := uint8(2), uint8(4)
	tv := TLV{Type: 1, IndexStart: &start, IndexStop: &stop}
	buf, err := tv.encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeTLV(newCursor(buf))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		want := i >= 2 && i <= 4
		if got.appliesTo(i) != want {
			t.Errorf("appliesTo(%d) = %v, want %v", i, got.appliesTo(i), want)
		}
	}
}

func TestDecodeTLVBadIndexFlags(t *testing.T) {
	buf := []byte{tlvFlagSingleIdx | tlvFlagIdxRange, 1, 0, 0}
	_, err := decodeTLV(newCursor(buf))
	de, ok := err.(*DecodeError)
	if !ok || de.Reason != BadTLVIdxFlags {
		t.Errorf("got %v, want BadTLVIdxFlags", err)
	}
}
