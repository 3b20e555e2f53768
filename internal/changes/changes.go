// Package changes computes field-level before/after diffs of entities for the
// audit trail.
package changes

import (
	"reflect"
	"sort"
	"time"
)

// Change is the before and after value of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes maps a field name to its change. Unchanged fields are absent.
type Changes map[string]Change

// Empty reports whether nothing changed.
func (c Changes) Empty() bool { return len(c) == 0 }

// Fields returns the changed field names in sorted order.
func (c Changes) Fields() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot holds the normalized tracked fields of an entity.
type Snapshot map[string]any

// Normalizer maps a raw field value to its comparable form.
type Normalizer func(any) any

// Field describes one tracked field of T.
type Field[T any] struct {
	Name      string
	Value     func(T) any
	Normalize Normalizer
}

// Extract reads the tracked fields of entity. Pointer values are dereferenced
// and a nil pointer is recorded as nil.
func Extract[T any](entity T, fields []Field[T]) Snapshot {
	snap := make(Snapshot, len(fields))
	for _, f := range fields {
		v := deref(f.Value(entity))
		if f.Normalize != nil && v != nil {
			v = f.Normalize(v)
		}
		snap[f.Name] = v
	}
	return snap
}

// Diff returns the fields whose values differ between before and after. A field
// missing on one side compares as nil, so Diff(nil, after) lists every field
// set on creation.
func Diff(before, after Snapshot) Changes {
	out := Changes{}
	for name, oldVal := range before {
		newVal := after[name]
		if !reflect.DeepEqual(oldVal, newVal) {
			out[name] = Change{Old: oldVal, New: newVal}
		}
	}
	for name, newVal := range after {
		if _, seen := before[name]; seen {
			continue
		}
		if newVal != nil {
			out[name] = Change{Old: nil, New: newVal}
		}
	}
	return out
}

// Tracker binds a field list to an entity type.
type Tracker[T any] struct {
	fields []Field[T]
}

// NewTracker builds a Tracker over fields.
func NewTracker[T any](fields ...Field[T]) *Tracker[T] {
	return &Tracker[T]{fields: fields}
}

// Snapshot extracts the tracked fields of entity.
func (t *Tracker[T]) Snapshot(entity T) Snapshot {
	return Extract(entity, t.fields)
}

// Diff compares two versions of the entity.
func (t *Tracker[T]) Diff(before, after T) Changes {
	return Diff(t.Snapshot(before), t.Snapshot(after))
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// InTimezone renders instants in loc so equal instants compare equal whatever
// zone they were loaded in.
func InTimezone(loc *time.Location) Normalizer {
	return func(v any) any {
		t, ok := v.(time.Time)
		if !ok {
			return v
		}
		return t.In(loc).Format(time.RFC3339Nano)
	}
}

// DateOnly reduces instants to the calendar day in loc.
func DateOnly(loc *time.Location) Normalizer {
	return func(v any) any {
		t, ok := v.(time.Time)
		if !ok {
			return v
		}
		return t.In(loc).Format(time.DateOnly)
	}
}

// SortedIDs orders id sets so membership, not order, is compared. nil and
// empty sets are equal.
func SortedIDs(v any) any {
	ids, ok := v.([]int64)
	if !ok {
		return v
	}
	out := append([]int64{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
