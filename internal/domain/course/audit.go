package course

import (
	"sort"

	"github.com/alem-hub/registrar/internal/domain/enrollment"
)

// MissingRequired returns the IDs of the required courses not covered by
// one of the passed enrollments, in ascending order. The caller decides what
// counts as passed; every non-nil enrollment here covers its course. Courses
// not flagged as required are ignored.
func MissingRequired(required []*Course, passed []*enrollment.Enrollment) []int64 {
	done := make(map[int64]struct{}, len(passed))
	for _, e := range passed {
		if e != nil {
			done[e.CourseID] = struct{}{}
		}
	}

	seen := make(map[int64]struct{}, len(required))
	missing := make([]int64, 0, len(required))
	for _, c := range required {
		if c == nil || !c.Required {
			continue
		}
		if _, ok := done[c.ID]; ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		missing = append(missing, c.ID)
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
