package catalog

import "errors"

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrPackageInactive = errors.New("package is no longer offered")
)
