package extraction

import (
	"bufio"
	"strings"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

// FromText builds a snapshot from pasted posting text. The first non-empty
// line is the title; "Company:" and "Location:" lines fill those fields.
func FromText(text string) dedup.PostingSnapshot {
	snapshot := dedup.PostingSnapshot{Description: strings.TrimSpace(text)}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if value, ok := labeled(line, "company"); ok {
			if snapshot.Company == "" {
				snapshot.Company = value
			}
			continue
		}
		if value, ok := labeled(line, "location"); ok {
			if snapshot.Location == "" {
				snapshot.Location = value
			}
			continue
		}
		if snapshot.Title == "" {
			snapshot.Title = line
		}
	}

	return snapshot
}

func labeled(line, label string) (string, bool) {
	name, value, found := strings.Cut(line, ":")
	if !found || !strings.EqualFold(strings.TrimSpace(name), label) {
		return "", false
	}
	return strings.TrimSpace(value), true
}
