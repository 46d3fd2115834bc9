package dispatch

// grammar.go turns pasted dispatch-note text into ParsedLine values.
//
// Dispatchers paste free-form notes, one order per line:
//
//	185) A Tuyến: CHÙA VẼ - An Tảo, Hưng Yên- GAOU6458814- Lấy 23/12, giao sáng 24/12- 01x40 HDPE-VN H5604F
//
// Each line is parsed independently by an ordered rule list. Rule order is
// significant:
//
//	 1. date-header lines (dashes around D/M) are skipped
//	 2. lines without a <digits>) prefix are skipped; the digits become
//	    the line number
//	 3. driver fragment: between ")" and the first ":"
//	 4. the text after ":" is split on "-" / "–" into segments;
//	    segment 0 is the pickup text, segment 1 the delivery text
//	 5. container code: first AAAA9999999 match anywhere after ":"
//	 6. pickup date: "lấy D/M", year defaulting to the current year
//	 7. delivery date and shift: "giao [sáng|chiều|tối] D/M"
//	 8. equipment size: first NxSS token with SS in {20, 40, 45}
//	 9. cargo note: raw text after the equipment token, cut at ";"
//	10. delivery address/contact: trailing ": <address> (<contact>)"
//
// Rules 9 and 10 deliberately read the raw remainder rather than the split
// segments, so cargo descriptions containing "-" (HDPE-VN) survive intact.
// Parsing never errors; lines the grammar cannot anchor are dropped.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ---------------23/12------------ style separators between days.
	dateHeaderRe = regexp.MustCompile(`^-{2,}\s*\d{1,2}/\d{1,2}\s*-{2,}$`)

	linePrefixRe = regexp.MustCompile(`^(\d+)\)`)

	// ISO 6346 owner code + serial, e.g. GAOU6458814.
	containerRe = regexp.MustCompile(`[A-Z]{4}[0-9]{7}`)

	pickupDateRe = regexp.MustCompile(`(?i)lấy\s*(\d{1,2})/(\d{1,2})`)
	deliveryRe   = regexp.MustCompile(`(?i)giao\s*(sáng|chiều|tối)?\s*(\d{1,2})/(\d{1,2})`)

	// Quantity x size, e.g. 01x40, 2x20. Sizes outside {20,40,45} are
	// ignored so stray NxNN text cannot hijack the equipment field.
	equipmentRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*x\s*(\d{2})\b`)

	// Trailing ": <address> (<contact>" with the closing parenthesis
	// frequently missing in pasted notes.
	addressTailRe = regexp.MustCompile(`:\s*([^:(]+?)\s*\(\s*([^)]*?)\s*\)?\s*$`)

	segmentSplitRe = regexp.MustCompile(`[-–]`)
)

// Shift keywords as dispatchers write them.
var shiftKeywords = map[string]Shift{
	"sáng":  ShiftMorning,
	"chiều": ShiftAfternoon,
	"tối":   ShiftEvening,
}

// timeNow is swapped in tests to pin the inferred year.
var timeNow = time.Now

// ParseText parses a pasted block of dispatch notes into structured lines.
// Unparseable lines and date-header separators are dropped silently; the
// result preserves input order. Duplicate line numbers are all kept, the
// caller is responsible for surfacing the conflict.
func ParseText(text string) []ParsedLine {
	now := timeNow()
	var lines []ParsedLine
	for _, raw := range splitLines(text) {
		if parsed, ok := parseLine(raw, now); ok {
			lines = append(lines, parsed)
		}
	}
	return lines
}

// splitLines normalizes Windows line endings and splits on newlines.
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// parseLine applies the grammar to a single raw line. The boolean is false
// for lines the grammar skips (blank, date header, no numbered prefix).
func parseLine(raw string, now time.Time) (ParsedLine, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || dateHeaderRe.MatchString(line) {
		return ParsedLine{}, false
	}

	prefix := linePrefixRe.FindStringSubmatch(line)
	if prefix == nil {
		return ParsedLine{}, false
	}
	lineNumber, err := strconv.Atoi(prefix[1])
	if err != nil {
		return ParsedLine{}, false
	}

	parsed := ParsedLine{
		LineNumber:    lineNumber,
		EquipmentSize: DefaultEquipmentSize,
		DeliveryShift: ShiftMorning,
	}

	// Driver fragment sits between ")" and the first ":". Notes without a
	// colon carry only the driver; every later field stays empty.
	rest := line[len(prefix[0]):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		parsed.DriverName = strings.TrimSpace(rest)
		return parsed, true
	}
	parsed.DriverName = strings.TrimSpace(rest[:colon])

	body := rest[colon+1:]

	segments := segmentSplitRe.Split(body, -1)
	if len(segments) > 0 {
		parsed.PickupText = strings.TrimSpace(segments[0])
	}
	if len(segments) > 1 {
		parsed.DeliveryText = strings.TrimSpace(segments[1])
	}

	parsed.ContainerCode = containerRe.FindString(body)

	if m := pickupDateRe.FindStringSubmatch(body); m != nil {
		parsed.PickupDate = buildDate(m[1], m[2], now)
	}
	if m := deliveryRe.FindStringSubmatch(body); m != nil {
		if shift, ok := shiftKeywords[strings.ToLower(m[1])]; ok {
			parsed.DeliveryShift = shift
		}
		parsed.DeliveryDate = buildDate(m[2], m[3], now)
	}

	if loc := findEquipment(body); loc != nil {
		parsed.EquipmentSize = body[loc[4]:loc[5]]
		parsed.CargoNote = cargoAfter(body, loc[1])
	}

	if m := addressTailRe.FindStringSubmatch(body); m != nil {
		parsed.DeliveryAddress = strings.TrimSpace(m[1])
		parsed.DeliveryContact = strings.TrimSpace(m[2])
	}

	return parsed, true
}

// findEquipment returns the submatch index of the first NxSS token whose
// size is a known container size, or nil.
func findEquipment(body string) []int {
	for _, loc := range equipmentRe.FindAllStringSubmatchIndex(body, -1) {
		switch body[loc[4]:loc[5]] {
		case Equipment20, Equipment40, Equipment45:
			return loc
		}
	}
	return nil
}

// cargoAfter extracts the cargo note that follows the equipment token,
// cutting at the first ";" so trailing "; giao ..." clauses stay out.
func cargoAfter(body string, start int) string {
	tail := body[start:]
	if i := strings.Index(tail, ";"); i >= 0 {
		tail = tail[:i]
	}
	return strings.TrimSpace(tail)
}

// buildDate turns D/M captures into a date in the current year. Dispatch
// notes never carry a year; the note is assumed to be about the year it is
// pasted in.
func buildDate(dayStr, monthStr string, now time.Time) *time.Time {
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return nil
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil
	}
	d := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, time.Local)
	return &d
}
