// Package fallback provides the tagged result used wherever a live fetch may
// be replaced by fixed demonstration data, plus the embedded demonstration sets.
package fallback

// Result carries either live data or a substituted fallback set. Fallback is
// true only for substituted data so callers can label it.
type Result[T any] struct {
	Data     T
	Fallback bool
	Err      error
}

// Live wraps data returned by the authoritative source.
func Live[T any](data T) Result[T] {
	return Result[T]{Data: data}
}

// Substitute wraps fallback data together with the failure that caused it.
// err may be nil when the live source returned nothing.
func Substitute[T any](data T, err error) Result[T] {
	return Result[T]{Data: data, Fallback: true, Err: err}
}

// OK reports whether the data came from the live source.
func (r Result[T]) OK() bool {
	return !r.Fallback
}
