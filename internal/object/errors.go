package object

import "errors"

// ErrMalformed is wrapped by Codec.Decode when a stored payload cannot be
// interpreted as an Object.
var ErrMalformed = errors.New("object: malformed payload")
