package domain

import (
	"bufio"
	"strings"
)

// ManifestEntry is one parsed manifest line. An entry without colors names a
// breed whose colors still have to be resolved.
type ManifestEntry struct {
	BreedName string
	Colors    []string
}

// ParseManifest reads the `Breed: color1, color2` line format. Blank lines
// are skipped, lines with a colon are split on the first colon, and entries
// naming the same breed are merged.
func ParseManifest(text string) []ManifestEntry {
	var entries []ManifestEntry
	index := make(map[string]int)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, ok := ParseManifestLine(scanner.Text())
		if !ok {
			continue
		}
		key := strings.ToLower(entry.BreedName)
		if i, exists := index[key]; exists {
			entries[i].Colors = MergeColors(entries[i].Colors, entry.Colors)
			continue
		}
		index[key] = len(entries)
		entries = append(entries, entry)
	}
	return entries
}

// ParseManifestLine parses a single line. A line with a colon is only
// accepted when both the breed and the color list are non-empty.
func ParseManifestLine(line string) (ManifestEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ManifestEntry{}, false
	}
	name, list, hasColon := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !hasColon {
		return ManifestEntry{BreedName: name}, true
	}
	colors := SplitColors(list)
	if name == "" || len(colors) == 0 {
		return ManifestEntry{}, false
	}
	return ManifestEntry{BreedName: name, Colors: colors}, true
}

// SplitColors splits a comma-separated list, trimming entries and dropping
// empty fragments.
func SplitColors(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if c := strings.TrimSpace(part); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// MergeColors appends the incoming colors that are not already present,
// comparing case-insensitively and keeping the existing order.
func MergeColors(existing, incoming []string) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, c := range existing {
		seen[strings.ToLower(c)] = struct{}{}
	}
	for _, c := range incoming {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(c))
	}
	return out
}

// ExportManifest renders one line per record with at least one color.
func ExportManifest(records []BreedRecord) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		if len(r.Colors) == 0 {
			continue
		}
		lines = append(lines, r.BreedName+": "+strings.Join(r.Colors, ", "))
	}
	return strings.Join(lines, "\n")
}
