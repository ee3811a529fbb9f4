package domain

import "errors"

var (
	ErrInvalidScope    = errors.New("invalid scope")
	ErrInvalidHostname = errors.New("invalid hostname")
	ErrInvalidType     = errors.New("invalid request type")
	ErrInvalidHue      = errors.New("invalid hue")
	ErrInvalidLevel    = errors.New("invalid scope level")
)
