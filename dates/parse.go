package dates

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TimestampFormat marks sources whose dates are epoch seconds.
const TimestampFormat = "timestamp"

// Output formats. Published dates are pinned to the morning and deadlines to
// the last minute of the day. The clock parts are literal suffixes, appended
// after formatting the day, since digits in a layout are format tokens.
const (
	dayLayout      = "2006-01-02"
	publishedClock = " 08:00:00"
	deadlineClock  = " 23:59:00"
	DateTimeLayout = "2006-01-02 15:04:05"
)

var (
	// ErrUnparseable is returned when a token does not match its format.
	ErrUnparseable = errors.New("unparseable date")

	// ErrUnsupportedDirective is returned for strptime directives that have
	// no layout equivalent.
	ErrUnsupportedDirective = errors.New("unsupported date directive")
)

// Non-padded numeric elements so "5/6/2021" parses like strptime does.
var directives = map[byte]string{
	'd': "2",
	'm': "1",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'I': "3",
	'M': "4",
	'S': "5",
	'f': "000000",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// Layout converts a strptime format such as "%d%m%Y" into a time layout.
func Layout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("%w: trailing %%", ErrUnsupportedDirective)
		}
		i++
		layout, ok := directives[format[i]]
		if !ok {
			return "", fmt.Errorf("%w: %%%c", ErrUnsupportedDirective, format[i])
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}

// Parse parses a normalized token with a strptime format, or as epoch
// seconds when format is TimestampFormat.
func Parse(token, format string) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseable)
	}

	if format == TimestampFormat {
		secs, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a timestamp", ErrUnparseable, token)
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}

	layout, err := Layout(format)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, token)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q with %q", ErrUnparseable, token, format)
	}
	return t, nil
}

// Published formats a raw publication date. An empty format leaves the date
// unset. When the date cannot be parsed the zero-padded raw text is returned
// along with an ErrUnparseable error, so callers can keep the best value.
func Published(raw, format, batchID string) (string, error) {
	switch format {
	case "":
		return "", nil
	case TimestampFormat:
		t, err := Parse(raw, format)
		if err != nil {
			return "", err
		}
		return t.Format(dayLayout) + publishedClock, nil
	}
	return resolve(raw, format, batchID, publishedClock)
}

// Deadline formats a raw deadline as an end-of-day timestamp. Without a
// format the zero-padded raw text is kept as-is.
func Deadline(raw, format, batchID string) (string, error) {
	raw = strings.ReplaceAll(raw, "deadline:", "")
	if format == "" {
		return padLeft(strings.TrimSpace(raw)), nil
	}
	return resolve(raw, format, batchID, deadlineClock)
}

// resolve parses the padded raw text, then its normalized form, and formats
// the day followed by clock.
func resolve(raw, format, batchID, clock string) (string, error) {
	padded := padLeft(strings.TrimSpace(raw))
	if t, err := Parse(padded, format); err == nil {
		return t.Format(dayLayout) + clock, nil
	}
	t, err := Parse(Normalize(padded, batchID), format)
	if err != nil {
		return padded, err
	}
	return t.Format(dayLayout) + clock, nil
}

// padLeft zero-pads s to eight characters.
func padLeft(s string) string {
	if n := runeLen(s); n < 8 {
		return strings.Repeat("0", 8-n) + s
	}
	return s
}

// FromHeader formats an HTTP Last-Modified or Date header value as a
// publication timestamp. RFC 1123 is tried first, then any recognizable
// layout.
func FromHeader(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: empty header", ErrUnparseable)
	}
	t, err := http.ParseTime(value)
	if err != nil {
		t, err = dateparse.ParseAny(value)
		if err != nil {
			return "", fmt.Errorf("%w: header %q", ErrUnparseable, value)
		}
	}
	return t.Format(dayLayout) + publishedClock, nil
}

// FromISO formats an ISO-8601 style value, such as an og:updated_time meta
// tag, keeping its time of day.
func FromISO(value string) (string, error) {
	t, err := dateparse.ParseAny(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnparseable, value)
	}
	return t.Format(DateTimeLayout), nil
}
