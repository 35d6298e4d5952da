package channel

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitMessage_Long(t *testing.T) {
	long := strings.Repeat("word ", 100)
	chunks := splitMessage(long, 50)
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
	if strings.Join(chunks, "") != long {
		t.Error("chunks should reassemble to the original")
	}
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	msg := strings.Repeat("a", 40) + "\n" + strings.Repeat("b", 40)
	chunks := splitMessage(msg, 50)
	if len(chunks) != 2 || chunks[0] != strings.Repeat("a", 40)+"\n" {
		t.Errorf("expected split after newline, got %q", chunks)
	}
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("é", 30) // 2 bytes each
	for _, c := range splitMessage(msg, 7) {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %q splits a rune", c)
		}
	}
}

func TestUnixSecondsToMillis(t *testing.T) {
	cases := map[string]int64{"1234567890": 1234567890000, "": 0, "abc": 0, " 5 ": 5000}
	for in, want := range cases {
		if got := unixSecondsToMillis(in); got != want {
			t.Errorf("unixSecondsToMillis(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("got %q", got)
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Errorf("got %q", got)
	}
}

func TestFingerprint_HidesSecret(t *testing.T) {
	fp := fingerprint("super-secret-token")
	if strings.Contains(fp, "secret") || len(fp) != 12 {
		t.Errorf("unexpected fingerprint %q", fp)
	}
	if fp != fingerprint("super-secret-token") {
		t.Error("fingerprint should be stable")
	}
}

func TestGuard_RecoversPanic(t *testing.T) {
	err := guard(testLogger(), "sub-event", func() error {
		var m map[string]int
		m["boom"] = 1
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected panic error, got %v", err)
	}

	sentinel := errors.New("bad")
	if err := guard(testLogger(), "x", func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", err)
	}
}
