// Package ptr provides helpers for optional values decoded as pointers.
package ptr

// Of returns a pointer to v.
func Of[T any](v T) *T { return &v }

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	var zero T

	return DerefOr(p, zero)
}

// DerefOr returns *p, or fallback when p is nil.
func DerefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}

	return *p
}
