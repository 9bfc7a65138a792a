package checksum

import (
	"errors"
	"testing"

	"github.com/danmuck/rspstub/internal/testutil/testlog"
)

func TestComputeKnownPayloads(t *testing.T) {
	testlog.Start(t)
	if got := Compute(nil); got != 0 {
		t.Fatalf("empty payload checksum=%#x", got)
	}
	payload := []byte("qSupported:multiprocess+;xmlRegisters=i386;qRelocInsn+")
	if got := Compute(payload); got != 0xb5 {
		t.Fatalf("qSupported checksum=%#x want 0xb5", got)
	}
}

func TestComputeWrapsModulo256(t *testing.T) {
	testlog.Start(t)
	payload := make([]byte, 0, 600)
	want := 0
	for i := 0; i < 600; i++ {
		b := byte(i * 7)
		payload = append(payload, b)
		want += int(b)
	}
	if got := Compute(payload); got != byte(want%256) {
		t.Fatalf("got=%#x want=%#x", got, want%256)
	}
	if got := Compute([]byte{0xff, 0x01}); got != 0 {
		t.Fatalf("0xff+0x01 should wrap to 0, got %#x", got)
	}
}

func TestParse(t *testing.T) {
	testlog.Start(t)
	cases := map[string]byte{
		"00": 0x00,
		"a1": 0xa1,
		"1d": 0x1d,
		"ff": 0xff,
		"FF": 0xff,
		"bE": 0xbe,
	}
	for in, want := range cases {
		got, err := Parse([]byte(in))
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q got=%#x want=%#x", in, got, want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "0", "zz", "0g", "g0", "123", " 1"} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("parse %q: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	testlog.Start(t)
	for i := 0; i < 256; i++ {
		f := Format(byte(i))
		got, err := Parse(f[:])
		if err != nil {
			t.Fatalf("parse formatted %q: %v", f[:], err)
		}
		if got != byte(i) {
			t.Fatalf("round trip %d got %d", i, got)
		}
	}
	if got := string(Append([]byte("#"), 0xb5)); got != "#b5" {
		t.Fatalf("append got %q", got)
	}
}
