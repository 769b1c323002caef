package evidence

import (
	"errors"
	"sort"
)

// ErrAmbiguousSelection is returned when a candidate set has no total
// order: two distinct candidates compare equal under the supplied rule.
// Selection must fail rather than pick arbitrarily.
var ErrAmbiguousSelection = errors.New("evidence: non-deterministic selection (no total order over candidates)")

// ErrNoCandidates is returned for an empty candidate set.
var ErrNoCandidates = errors.New("evidence: no candidates")

// SelectDeterministic picks the minimum candidate under cmp, which must be
// a pure total-order comparison. If the winner ties with any other
// candidate the selection is ambiguous and fails closed.
func SelectDeterministic[T any](candidates []T, cmp func(a, b T) int) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, ErrNoCandidates
	}

	ordered := append([]T(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return cmp(ordered[i], ordered[j]) < 0 })

	if len(ordered) > 1 && cmp(ordered[0], ordered[1]) == 0 {
		return zero, ErrAmbiguousSelection
	}
	return ordered[0], nil
}
