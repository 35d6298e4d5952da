package channel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"botgateway/internal/domain"
)

// FormatPhoneNumber strips everything but digits, including a leading "+".
func FormatPhoneNumber(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !isRuneStart(msg[cut]) {
				cut--
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// unixSecondsToMillis parses a decimal Unix seconds string. It returns 0 when
// the value is empty or malformed.
func unixSecondsToMillis(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return secs * 1000
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func newEventID() string {
	return uuid.NewString()
}

// fingerprint identifies a credential without exposing it.
func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// guard runs fn and converts a panic into an error so one malformed
// sub-event cannot abort a batch.
func guard(logger *slog.Logger, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", what, r)
		}
	}()
	if err = fn(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// bodyAs narrows body to B, rejecting a body whose tag routed it to the wrong
// formatter.
func bodyAs[B domain.MessageBody](body domain.MessageBody) (B, error) {
	b, ok := body.(B)
	if !ok {
		var t domain.MessageType
		if body != nil {
			t = body.MessageType()
		}
		return b, &domain.UnsupportedMessageTypeError{Type: t}
	}
	return b, nil
}
