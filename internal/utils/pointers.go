package utils

// Ptr returns a pointer to v. Useful for pointer fields of literal values,
// such as a tenant validity timestamp.
func Ptr[T any](v T) *T {
	return &v
}
