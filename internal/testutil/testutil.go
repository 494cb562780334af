// Package testutil holds small helpers shared by tests.
package testutil

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
