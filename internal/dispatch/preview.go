package dispatch

// preview.go analyzes pasted text without submitting anything, so the
// operator can check the parse and driver matches before starting a batch.

import (
	"context"
	"sort"
	"strings"
)

// LinePreview is one parsed line plus roster match hints.
type LinePreview struct {
	Line ParsedLine `json:"line"`

	// DriverID and DriverMatch are set when the driver fragment matched a
	// roster entry.
	DriverID    string `json:"driverId,omitempty"`
	DriverMatch string `json:"driverMatch,omitempty"`
}

// PreviewResult summarizes a dry-run parse of pasted text.
type PreviewResult struct {
	TotalLines   int `json:"totalLines"`
	SkippedLines int `json:"skippedLines"`

	// DuplicateLineNumbers lists line numbers appearing more than once.
	// Duplicates produce identical order codes, so the second submission
	// would be rejected by the backend.
	DuplicateLineNumbers []int `json:"duplicateLineNumbers,omitempty"`

	// UnmatchedDrivers counts parsed lines whose driver fragment matched
	// nothing on the roster.
	UnmatchedDrivers int `json:"unmatchedDrivers"`

	Lines []LinePreview `json:"lines"`

	// Warning is set when roster hints are unavailable.
	Warning string `json:"warning,omitempty"`
}

// Preview parses the text and annotates each line with roster matches.
// A roster fetch failure degrades to a parse-only preview rather than
// failing the request.
func (s *Service) Preview(ctx context.Context, text string) (*PreviewResult, error) {
	now := timeNow()

	var parsed []ParsedLine
	skipped := 0
	for _, raw := range splitLines(text) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || dateHeaderRe.MatchString(trimmed) {
			continue
		}
		p, ok := parseLine(raw, now)
		if !ok {
			skipped++
			continue
		}
		parsed = append(parsed, p)
	}

	result := &PreviewResult{
		TotalLines:           len(parsed),
		SkippedLines:         skipped,
		DuplicateLineNumbers: duplicateLineNumbers(parsed),
		Lines:                make([]LinePreview, 0, len(parsed)),
	}

	roster, err := s.backend.ListDrivers(ctx)
	if err != nil {
		s.logger.Warn("roster unavailable for preview", "error", err)
		result.Warning = "driver roster unavailable, match hints skipped"
	}

	for _, line := range parsed {
		preview := LinePreview{Line: line}
		if err == nil {
			if driver, ok := MatchDriver(line.DriverName, roster); ok {
				preview.DriverID = driver.ID
				preview.DriverMatch = driver.FullName
			} else {
				result.UnmatchedDrivers++
			}
		}
		result.Lines = append(result.Lines, preview)
	}

	return result, nil
}

// duplicateLineNumbers returns the sorted line numbers that occur more
// than once.
func duplicateLineNumbers(lines []ParsedLine) []int {
	seen := make(map[int]int, len(lines))
	for _, line := range lines {
		seen[line.LineNumber]++
	}

	var dupes []int
	for number, count := range seen {
		if count > 1 {
			dupes = append(dupes, number)
		}
	}
	sort.Ints(dupes)
	return dupes
}
