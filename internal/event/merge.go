package event

import "evboard/internal/model"

// Dedupe keeps one record per id. The last occurrence wins and takes the
// position of the first occurrence. Records with an empty id are dropped.
func Dedupe(events []model.Event) []model.Event {
	pos := make(map[string]int, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if i, ok := pos[ev.ID]; ok {
			out[i] = ev
			continue
		}
		pos[ev.ID] = len(out)
		out = append(out, ev)
	}
	return out
}

// Merge combines a primary (live) and a secondary (archive) source.
//
// On an id collision the primary record replaces the secondary one
// wholesale; secondary records only fill ids absent from primary. Ids in
// excluded are dropped regardless of source. The result lists primary
// records in their order followed by secondary-only records.
func Merge(primary, secondary []model.Event, excluded IDSet) []model.Event {
	primary = Dedupe(primary)
	secondary = Dedupe(secondary)

	seen := make(map[string]struct{}, len(primary)+len(secondary))
	out := make([]model.Event, 0, len(primary)+len(secondary))
	for _, ev := range primary {
		seen[ev.ID] = struct{}{}
		if excluded.Has(ev.ID) {
			continue
		}
		out = append(out, ev)
	}
	for _, ev := range secondary {
		if _, ok := seen[ev.ID]; ok || excluded.Has(ev.ID) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Index maps events by id.
func Index(events []model.Event) map[string]model.Event {
	m := make(map[string]model.Event, len(events))
	for _, ev := range events {
		m[ev.ID] = ev
	}
	return m
}
