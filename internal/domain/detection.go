package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ObjectChanges is the difference in detected labels between two detections.
// Both slices are sorted and free of duplicates.
type ObjectChanges struct {
	New  []string
	Gone []string
}

// None reports whether the two detections saw the same set of objects.
func (c ObjectChanges) None() bool { return len(c.New) == 0 && len(c.Gone) == 0 }

func (c ObjectChanges) String() string {
	if c.None() {
		return "No object changes."
	}
	var lines []string
	if len(c.New) > 0 {
		lines = append(lines, fmt.Sprintf("New objects: [%s]", strings.Join(c.New, ", ")))
	}
	if len(c.Gone) > 0 {
		lines = append(lines, fmt.Sprintf("Objects no longer detected: [%s]", strings.Join(c.Gone, ", ")))
	}
	return strings.Join(lines, "\n")
}

// CompareDetections reports which labels appear in next but not prev, and
// which disappeared. Duplicates within a detection are ignored.
func CompareDetections(prev, next Detection) ObjectChanges {
	before := setOf(prev.DetectedObjects)
	after := setOf(next.DetectedObjects)

	var c ObjectChanges
	for obj := range after {
		if _, ok := before[obj]; !ok {
			c.New = append(c.New, obj)
		}
	}
	for obj := range before {
		if _, ok := after[obj]; !ok {
			c.Gone = append(c.Gone, obj)
		}
	}
	slices.Sort(c.New)
	slices.Sort(c.Gone)
	return c
}

// LatestChanges compares the two most recent detections of m by date.
// ok is false when m has fewer than two detections.
func LatestChanges(m Marker) (changes ObjectChanges, ok bool) {
	if len(m.DetectedObjects) < 2 {
		return ObjectChanges{}, false
	}
	sorted := slices.Clone(m.DetectedObjects)
	slices.SortStableFunc(sorted, func(a, b Detection) int {
		return a.DateDetected.Compare(b.DateDetected.Time)
	})
	n := len(sorted)
	return CompareDetections(sorted[n-2], sorted[n-1]), true
}

func setOf(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}
