package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// toFloat interprets a slot value as a number.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatNumber implements the standard numeric formats F, N, D, P, X and G,
// each optionally followed by a precision.
func formatNumber(value any, format string, tag language.Tag) (any, error) {
	f, ok := toFloat(value)
	if !ok {
		return value, fmt.Errorf("number format %q on %v: %w", format, value, ErrNotApplicable)
	}
	if format == "" {
		format = "G"
	}
	spec := format[0]
	prec := -1
	if len(format) > 1 {
		p, err := strconv.Atoi(format[1:])
		if err != nil || p < 0 {
			return value, fmt.Errorf("number format %q: %w", format, ErrUnknownFormat)
		}
		prec = p
	}
	precOr := func(def int) int {
		if prec < 0 {
			return def
		}
		return prec
	}

	switch spec {
	case 'F', 'f':
		return strconv.FormatFloat(f, 'f', precOr(2), 64), nil
	case 'N', 'n':
		p := precOr(2)
		printer := message.NewPrinter(tag)
		return printer.Sprint(number.Decimal(f, number.MinFractionDigits(p), number.MaxFractionDigits(p))), nil
	case 'P', 'p':
		p := precOr(2)
		printer := message.NewPrinter(tag)
		return printer.Sprint(number.Percent(f, number.MinFractionDigits(p), number.MaxFractionDigits(p))), nil
	case 'D', 'd':
		if f != math.Trunc(f) {
			return value, fmt.Errorf("number format %q on %v: %w", format, value, ErrNotApplicable)
		}
		n := int64(f)
		digits := strconv.FormatInt(abs64(n), 10)
		if pad := precOr(0) - len(digits); pad > 0 {
			digits = strings.Repeat("0", pad) + digits
		}
		if n < 0 {
			digits = "-" + digits
		}
		return digits, nil
	case 'X', 'x':
		if f != math.Trunc(f) || f < 0 {
			return value, fmt.Errorf("number format %q on %v: %w", format, value, ErrNotApplicable)
		}
		hex := strconv.FormatUint(uint64(f), 16)
		if spec == 'X' {
			hex = strings.ToUpper(hex)
		}
		if pad := precOr(0) - len(hex); pad > 0 {
			hex = strings.Repeat("0", pad) + hex
		}
		return hex, nil
	case 'G', 'g':
		if prec <= 0 {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
		return strconv.FormatFloat(f, 'g', prec, 64), nil
	default:
		return value, fmt.Errorf("number format %q: %w", format, ErrUnknownFormat)
	}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func formatDateTime(value any, format string) (any, error) {
	t, ok := toTime(value)
	if !ok {
		return value, fmt.Errorf("date format %q on %v: %w", format, value, ErrNotApplicable)
	}
	return FormatTime(t, format), nil
}

// FormatTime renders t with a custom date pattern in the style of
// "dddd, MMMM d yyyy h:mm tt". Letters outside the pattern alphabet are copied
// as is; 'quoted' text and backslash escapes are literal.
func FormatTime(t time.Time, format string) string {
	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		c := runes[i]
		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		switch c {
		case '\'', '"':
			end := i + 1
			for end < len(runes) && runes[end] != c {
				end++
			}
			b.WriteString(string(runes[i+1 : min(end, len(runes))]))
			i = end + 1
			continue
		case '\\':
			if i+1 < len(runes) {
				b.WriteRune(runes[i+1])
			}
			i += 2
			continue
		case 'y':
			switch {
			case n == 1:
				b.WriteString(strconv.Itoa(t.Year() % 100))
			case n == 2:
				fmt.Fprintf(&b, "%02d", t.Year()%100)
			default:
				fmt.Fprintf(&b, "%0*d", n, t.Year())
			}
		case 'M':
			switch {
			case n == 1:
				b.WriteString(strconv.Itoa(int(t.Month())))
			case n == 2:
				fmt.Fprintf(&b, "%02d", int(t.Month()))
			case n == 3:
				b.WriteString(t.Month().String()[:3])
			default:
				b.WriteString(t.Month().String())
			}
		case 'd':
			switch {
			case n == 1:
				b.WriteString(strconv.Itoa(t.Day()))
			case n == 2:
				fmt.Fprintf(&b, "%02d", t.Day())
			case n == 3:
				b.WriteString(t.Weekday().String()[:3])
			default:
				b.WriteString(t.Weekday().String())
			}
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			writeNum(&b, h, n)
		case 'H':
			writeNum(&b, t.Hour(), n)
		case 'm':
			writeNum(&b, t.Minute(), n)
		case 's':
			writeNum(&b, t.Second(), n)
		case 'f':
			frac := fmt.Sprintf("%09d", t.Nanosecond())
			b.WriteString(frac[:min(n, 9)])
		case 't':
			ampm := "AM"
			if t.Hour() >= 12 {
				ampm = "PM"
			}
			if n == 1 {
				ampm = ampm[:1]
			}
			b.WriteString(ampm)
		default:
			b.WriteString(strings.Repeat(string(c), n))
		}
		i += n
	}
	return b.String()
}

func writeNum(b *strings.Builder, v, width int) {
	if width >= 2 {
		fmt.Fprintf(b, "%02d", v)
		return
	}
	b.WriteString(strconv.Itoa(v))
}
