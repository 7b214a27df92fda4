package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	resultTagRe   = regexp.MustCompile(`\[Result "(.*?)"\]`)
	moveNumberRe  = regexp.MustCompile(`\d+\. `)
	eventMarker   = "[Event"
	blankLineMark = "\n\n"
)

// ResultFromPGN extracts the [Result "..."] tag value, or "" when absent.
func ResultFromPGN(pgn string) string {
	m := resultTagRe.FindStringSubmatch(pgn)
	if m == nil {
		return ""
	}
	return m[1]
}

// MoveCountFromPGN counts move-number tokens and doubles them to
// approximate the ply count. Zero means no tokens were found.
func MoveCountFromPGN(pgn string) int {
	return len(moveNumberRe.FindAllString(pgn, -1)) * 2
}

// ExtractGameText scans an HTML or text body for a PGN region starting at
// the game-header marker and ending at the first blank line or end of input.
func ExtractGameText(body string) (string, bool) {
	idx := strings.Index(body, eventMarker)
	if idx < 0 {
		return "", false
	}
	rest := body[idx:]
	if end := strings.Index(rest, blankLineMark); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

// CompactTimeControl renders a raw "<base>" or "<base>+<increment>" time
// control as a compact label: "40s", "10m", "5m08s", "1h30m". The increment
// suffix is appended verbatim for every bucket. Unparseable input yields "".
func CompactTimeControl(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	basePart, incPart, _ := strings.Cut(raw, "+")
	base, err := strconv.Atoi(basePart)
	if err != nil {
		return ""
	}

	inc := ""
	if incPart != "" {
		inc = "+" + incPart
	}

	switch {
	case base < 60:
		return fmt.Sprintf("%ds%s", base, inc)
	case base < 3600:
		if s := base % 60; s != 0 {
			return fmt.Sprintf("%dm%02ds%s", base/60, s, inc)
		}
		return fmt.Sprintf("%dm%s", base/60, inc)
	default:
		if m := (base % 3600) / 60; m != 0 {
			return fmt.Sprintf("%dh%02dm%s", base/3600, m, inc)
		}
		return fmt.Sprintf("%dh%s", base/3600, inc)
	}
}

// CompactClock renders separate base/increment seconds through the same
// compaction as CompactTimeControl.
func CompactClock(baseSeconds, incrementSeconds int) string {
	if baseSeconds <= 0 {
		return ""
	}
	if incrementSeconds > 0 {
		return CompactTimeControl(fmt.Sprintf("%d+%d", baseSeconds, incrementSeconds))
	}
	return CompactTimeControl(strconv.Itoa(baseSeconds))
}
