package models

import "errors"

var (
	ErrInvalidTarget     = errors.New("edit target must name exactly one of unit or building")
	ErrUnknownField      = errors.New("field is not editable")
	ErrEditNotFound      = errors.New("field edit not found")
	ErrNoConflict        = errors.New("field edit has no open conflict")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
	ErrUnknownProvider   = errors.New("unknown provider")
)
