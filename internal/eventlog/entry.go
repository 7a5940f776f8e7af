package eventlog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the state transition an entry records.
type Kind string

const (
	KindInit     Kind = "INIT"
	KindInternal Kind = "INTERNAL"
	KindReceive  Kind = "RECEIVE"
	KindSend     Kind = "SEND"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInit, KindInternal, KindReceive, KindSend:
		return true
	}
	return false
}

// AdvancesClock reports whether a transition of this kind moves the
// logical clock forward.
func (k Kind) AdvancesClock() bool {
	return k == KindInternal || k == KindReceive || k == KindSend
}

// Entry is a single line of a machine's event log.
type Entry struct {
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	Clock  int64     `json:"lc"`
	Detail string    `json:"detail"`
}

// Format renders e as a log line, including the trailing newline.
func (e Entry) Format() string {
	return fmt.Sprintf("%s | %s | LC: %d | %s\n", formatTime(e.Time), e.Kind, e.Clock, e.Detail)
}

func formatTime(t time.Time) string {
	us := t.UnixMicro()
	return fmt.Sprintf("%d.%06d", us/1e6, us%1e6)
}

// Seconds returns the entry's wall-clock time as fractional unix seconds.
func (e Entry) Seconds() float64 {
	return float64(e.Time.UnixMicro()) / 1e6
}

// Parse decodes one log line. The trailing newline is optional.
func Parse(line string) (Entry, error) {
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), "|", 4)
	if len(parts) < 3 {
		return Entry{}, fmt.Errorf("parse entry: expected at least 3 fields, got %d", len(parts))
	}

	ts, err := parseTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry: timestamp: %w", err)
	}

	kind := Kind(strings.TrimSpace(parts[1]))
	if !kind.Valid() {
		return Entry{}, fmt.Errorf("parse entry: unknown kind %q", kind)
	}

	lcField := strings.TrimSpace(parts[2])
	lcText, ok := strings.CutPrefix(lcField, "LC:")
	if !ok {
		return Entry{}, fmt.Errorf("parse entry: clock field %q", lcField)
	}
	lc, err := strconv.ParseInt(strings.TrimSpace(lcText), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry: clock: %w", err)
	}

	var detail string
	if len(parts) == 4 {
		detail = strings.TrimSpace(parts[3])
	}

	return Entry{
		Time:   ts,
		Kind:   kind,
		Clock:  lc,
		Detail: detail,
	}, nil
}

// parseTime reads fractional unix seconds with microsecond precision.
// Digits past the sixth decimal are truncated.
func parseTime(s string) (time.Time, error) {
	whole, frac, _ := strings.Cut(s, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	var micros int64
	if frac != "" {
		micros, err = strconv.ParseInt(frac+strings.Repeat("0", 6-len(frac)), 10, 64)
		if err != nil || micros < 0 {
			return time.Time{}, fmt.Errorf("invalid fraction %q", frac)
		}
	}
	return time.UnixMicro(secs*1e6 + micros), nil
}

// Detail builders and extractors. The extractors match the key anywhere in
// the detail string so tooling keeps working if details gain fields.

var (
	clockRateRE = regexp.MustCompile(`ClockRate:\s*(\d+)`)
	queueLenRE  = regexp.MustCompile(`QueueLen:\s*(\d+)`)
	fromRE      = regexp.MustCompile(`From:\s*(\d+)`)
)

// InitDetail is the detail of the INIT entry.
func InitDetail(clockRate int) string {
	return fmt.Sprintf("ClockRate: %d", clockRate)
}

// ReceiveDetail is the detail of a RECEIVE entry.
func ReceiveDetail(from, queueLen int) string {
	return fmt.Sprintf("From: %d, QueueLen: %d", from, queueLen)
}

// ClockRate extracts the configured tick rate from an INIT detail.
func ClockRate(detail string) (int, bool) {
	return extractInt(clockRateRE, detail)
}

// QueueLen extracts the post-dequeue depth from a RECEIVE detail.
func QueueLen(detail string) (int, bool) {
	return extractInt(queueLenRE, detail)
}

// From extracts the sender id from a RECEIVE detail.
func From(detail string) (int, bool) {
	return extractInt(fromRE, detail)
}

func extractInt(re *regexp.Regexp, detail string) (int, bool) {
	m := re.FindStringSubmatch(detail)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
