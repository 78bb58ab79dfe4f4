package phone

import "testing"

func TestNormalize_NANPEquivalence(t *testing.T) {
	want := "+14168189171"
	for _, in := range []string{"4168189171", "+14168189171", "14168189171", "(416) 818-9171", "1-416-818-9171"} {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_InternationalPassThrough(t *testing.T) {
	if got := Normalize("+442071838750"); got != "+442071838750" {
		t.Fatalf("unexpected: %q", got)
	}
	// Short internal extensions keep their digits.
	if got := Normalize("104"); got != "+104" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestNormalize_GarbageStillReturnsString(t *testing.T) {
	if got := Normalize("anonymous"); got != "anonymous" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Normalize(""); got != "" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("4168189171", "+1 (416) 818-9171") {
		t.Fatalf("expected numbers to compare equal")
	}
	if Equal("4168189171", "4168189172") {
		t.Fatalf("expected numbers to differ")
	}
}

func TestSuffix(t *testing.T) {
	if got := Suffix("+14168189171", 4); got != "9171" {
		t.Fatalf("unexpected suffix: %q", got)
	}
	if got := Suffix("+104", 4); got != "104" {
		t.Fatalf("short numbers are returned whole, got %q", got)
	}
}
