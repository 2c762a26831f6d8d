package handler

import (
	"testing"

	"audit-capture/internal/models"
	"audit-capture/internal/record"
)

func storedSets(areas ...string) []record.StoredSet {
	out := make([]record.StoredSet, 0, len(areas))
	for _, a := range areas {
		s := record.StoredSet{}
		s.PhotoSet = models.PhotoSet{Area: a}
		out = append(out, s)
	}
	return out
}

func TestUniqueArea(t *testing.T) {
	cases := []struct {
		name     string
		area     string
		existing []record.StoredSet
		want     string
	}{
		{"no conflict", "Línea 1", storedSets("Andén"), "Línea 1"},
		{"first duplicate", "Línea 1", storedSets("Línea 1"), "Línea 1 (2)"},
		{"chained duplicates", "Línea 1", storedSets("Línea 1", "Línea 1 (2)"), "Línea 1 (3)"},
		{"empty list", "Línea 1", nil, "Línea 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := uniqueArea(tc.area, tc.existing); got != tc.want {
				t.Fatalf("uniqueArea(%q) = %q, want %q", tc.area, got, tc.want)
			}
		})
	}
}
