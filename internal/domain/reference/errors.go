package reference

import "errors"

var (
	ErrEmptyPath = errors.New("reference: empty pending path")
	ErrInternal  = errors.New("reference: internal error")
)
