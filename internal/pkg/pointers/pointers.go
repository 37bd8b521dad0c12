package pointers

import "strings"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Value returns *p, or the zero value for nil.
func Value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Trimmed returns *p without surrounding whitespace; nil reads as "".
func Trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// NonBlank copies *p unchanged when it has any non-space content.
func NonBlank(p *string) *string {
	if Trimmed(p) == "" {
		return nil
	}
	s := *p
	return &s
}

// TrimmedOrNil is NonBlank with the surrounding whitespace removed.
func TrimmedOrNil(p *string) *string {
	s := Trimmed(p)
	if s == "" {
		return nil
	}
	return &s
}
