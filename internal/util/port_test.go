package util

import "testing"

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 22, 5901, 65535} {
		if err := ValidatePort(port); err != nil {
			t.Fatalf("port %d should be valid: %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536, 100000} {
		if err := ValidatePort(port); err == nil {
			t.Fatalf("port %d should be invalid", port)
		}
	}
}

func TestEmptyDash(t *testing.T) {
	if EmptyDash("") != "-" || EmptyDash("  ") != "-" {
		t.Fatal("blank strings must render as dash")
	}
	if EmptyDash("value") != "value" {
		t.Fatal("non-blank strings must pass through")
	}
}

func TestDefaultString(t *testing.T) {
	if DefaultString("", "fallback") != "fallback" {
		t.Fatal("empty string must yield the fallback")
	}
	if DefaultString("x", "fallback") != "x" {
		t.Fatal("non-empty string must win")
	}
}
