package ptr

// New returns a pointer to v, for SDK inputs that take pointers to literals.
func New[T any](v T) *T {
	return &v
}
