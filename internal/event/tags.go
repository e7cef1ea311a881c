package event

import "strings"

// genreKeywords are the music styles the venues advertise, in display order.
var genreKeywords = []struct {
	keyword string
	tag     string
}{
	{"reggaeton", "Reggaeton"},
	{"comercial", "Comercial"},
	{"latin", "Latin"},
	{"techno", "Techno"},
	{"house", "House"},
	{"electro", "Electro"},
	{"hip hop", "Hip Hop"},
	{"trap", "Trap"},
	{"remember", "Remember"},
	{"indie", "Indie"},
	{"pop", "Pop"},
	{"rock", "Rock"},
	{"r&b", "R&B"},
}

// GenreTags returns the genre tags whose keyword appears in text.
func GenreTags(text string) []string {
	lower := strings.ToLower(FoldAccents(text))
	var tags []string
	for _, g := range genreKeywords {
		if strings.Contains(lower, g.keyword) {
			tags = append(tags, g.tag)
		}
	}
	return tags
}

// MergeTags appends the tags of extra missing from base, comparing
// case-insensitively.
func MergeTags(base []string, extra ...string) []string {
	seen := make(map[string]bool, len(base))
	for _, t := range base {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range extra {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		base = append(base, t)
	}
	return base
}
