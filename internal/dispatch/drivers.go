package dispatch

import "strings"

// MatchDriver resolves the driver fragment from a dispatch line against the
// roster. The roster is scanned in order and the first driver satisfying any
// of these checks (case-insensitive, diacritics intact) wins:
//
//   - the driver's full name contains the fragment
//   - the fragment contains the driver's calling name (the final token of
//     the short name when present, otherwise of the full name)
//   - the fragment contains the final token of the full name
//
// Vietnamese names put the given name last and that is how dispatchers
// address drivers, so "A Tuyến" finds "Nguyễn Văn Tuyến". No match is not
// an error; the order is simply created unassigned. Roster order decides
// ties between drivers sharing a given name.
func MatchDriver(fragment string, roster []Driver) (Driver, bool) {
	frag := strings.ToLower(strings.TrimSpace(fragment))
	if frag == "" {
		return Driver{}, false
	}
	for _, d := range roster {
		if driverMatches(frag, d) {
			return d, true
		}
	}
	return Driver{}, false
}

// driverMatches checks a lowercased fragment against one roster entry.
func driverMatches(frag string, d Driver) bool {
	full := strings.ToLower(strings.TrimSpace(d.FullName))
	if full == "" {
		return false
	}
	if strings.Contains(full, frag) {
		return true
	}
	if last := callingName(d.ShortName, d.FullName); last != "" && strings.Contains(frag, last) {
		return true
	}
	if last := finalToken(d.FullName); last != "" && strings.Contains(frag, last) {
		return true
	}
	return false
}

// callingName is the final token of the short name, falling back to the
// full name when no short name is on file.
func callingName(shortName, fullName string) string {
	if t := finalToken(shortName); t != "" {
		return t
	}
	return finalToken(fullName)
}

// finalToken returns the last whitespace-delimited token, lowercased.
func finalToken(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
