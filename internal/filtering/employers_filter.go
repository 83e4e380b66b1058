package filtering

import (
	"context"
	"strings"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

type employersFilter struct {
	employers map[string]struct{}
	names     []string
}

// NewExludedEmployers drops evaluations of postings from the given companies.
// Names are compared case-insensitively.
func NewExludedEmployers(employers []string) Filter {
	f := &employersFilter{employers: make(map[string]struct{}, len(employers))}
	for _, name := range employers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f.employers[strings.ToLower(name)] = struct{}{}
		f.names = append(f.names, name)
	}
	return f
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) Disable(string) {}

func (f *employersFilter) IsEnabled() bool { return true }

func (f *employersFilter) Validate() error { return nil }

func (f *employersFilter) Apply(_ context.Context, records []dedup.Record) ([]dedup.Record, Step, error) {
	if len(f.employers) == 0 {
		return records, step(len(records), records), nil
	}

	kept, _ := keep(records, func(rec dedup.Record) bool {
		_, excluded := f.employers[strings.ToLower(strings.TrimSpace(rec.Posting.Company))]
		return !excluded
	})
	return kept, step(len(records), kept), nil
}

func (f *employersFilter) Status() Status {
	details := map[string]string{}
	if len(f.names) > 0 {
		details["employers"] = strings.Join(f.names, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
