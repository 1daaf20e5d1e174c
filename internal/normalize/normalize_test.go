package normalize

import "testing"

func TestNormalizeSpecExample(t *testing.T) {
	in := "2024-01-02T03:04:05.678Z user 127.0.0.1 took 42ms with id 0xdeadbeef01"
	want := "<TS> user <IP> took <DUR> with id <HEX>"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeClusteringScenario(t *testing.T) {
	lines := []string{
		"2024-01-01T00:00:00 user 1 logged in",
		"2024-01-01T00:00:05 user 42 logged in",
		"2024-01-01T00:00:10 user 9999 logged in",
	}
	want := "<TS> user <NUM> logged in"
	for _, line := range lines {
		if got := Normalize(line); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestNormalizeEmptyLine(t *testing.T) {
	if got := Normalize(""); got != "" {
		t.Errorf("Normalize(\"\") = %q, want empty", got)
	}
}

func TestNormalizeUUID(t *testing.T) {
	in := "request 123e4567-e89b-12d3-a456-426614174000 completed"
	want := "request <UUID> completed"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeIPv6(t *testing.T) {
	in := "connection from fe80:0:0:0:0:0:0:1 refused"
	want := "connection from <IP> refused"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizePlainNumberNotHex(t *testing.T) {
	in := "processed 12345678 rows"
	want := "processed <NUM> rows"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeCommonTimestampForm(t *testing.T) {
	in := "2024-01-02 03:04:05 startup complete"
	want := "<TS> startup complete"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeWhitespaceCollapse(t *testing.T) {
	in := "  too    many     spaces   here  "
	want := "too many spaces here"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "2024-01-02T03:04:05.678Z user 127.0.0.1 took 42ms with id 0xdeadbeef01"
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestNormalizeLongUUIDHeavyLineIsBounded(t *testing.T) {
	in := ""
	for i := 0; i < 10; i++ {
		in += "123e4567-e89b-12d3-a456-426614174000 "
	}
	got := Normalize(in)
	if len(got) > len(in)+64 {
		t.Errorf("Normalize output length %d suspiciously larger than input %d", len(got), len(in))
	}
}
