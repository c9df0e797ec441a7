package common

import (
	"regexp"
	"testing"
)

func TestMakeRandHexString_LengthAndCharset(t *testing.T) {
	s, err := MakeRandHexString(32)
	if err != nil {
		t.Fatalf("MakeRandHexString error: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("unexpected length: got %d want 64", len(s))
	}
	if !regexp.MustCompile(`^[0-9a-f]+$`).MatchString(s) {
		t.Fatalf("not a hex string: %q", s)
	}
}

func TestMakeRandHexString_Unique(t *testing.T) {
	a, err := MakeRandHexString(16)
	if err != nil {
		t.Fatalf("MakeRandHexString error: %v", err)
	}
	b, err := MakeRandHexString(16)
	if err != nil {
		t.Fatalf("MakeRandHexString error: %v", err)
	}
	if a == b {
		t.Fatalf("two random strings collided: %q", a)
	}
}

func TestMakeOTP_WidthAndDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := MakeOTP(6)
		if err != nil {
			t.Fatalf("MakeOTP error: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("unexpected otp length: got %q", otp)
		}
		if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(otp) {
			t.Fatalf("otp not numeric: %q", otp)
		}
	}
}

func TestMakeOTP_InvalidLength(t *testing.T) {
	if _, err := MakeOTP(0); err == nil {
		t.Fatalf("expected error for zero digits")
	}
}

func TestWipeByteArray(t *testing.T) {
	b := []byte("sensitive")
	WipeByteArray(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}

	WipeByteArray(nil) // must not panic
}
