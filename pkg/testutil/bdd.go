package testutil

import "testing"

// Given and When name subtests after the scenario they set up. Thin wrappers
// over t.Run; the description carries the prefix so failures read as a
// sentence.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}
