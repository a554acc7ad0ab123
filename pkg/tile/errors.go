package tile

import "errors"

var (
	ErrInvalidExtent        = errors.New("tile: invalid extent")
	ErrInvalidProfile       = errors.New("tile: malformed profile")
	ErrInvalidKey           = errors.New("tile: key outside profile")
	ErrUnknownSRS           = errors.New("tile: unknown spatial reference")
	ErrUnsupportedTransform = errors.New("tile: unsupported transform")
	ErrInvalidHeightField   = errors.New("tile: invalid heightfield")
	ErrUnrecognizedFormat   = errors.New("tile: unrecognized image format")
)
