package stockpile

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ObjectTooLargeError is the error returned when a type's size exceeds the usable capacity of the
// block or chunk that would have to store it
var ObjectTooLargeError error = errors.New("object type is too large")

// ZeroSizeError is the error returned when attempting to build an engine around a zero-sized type
var ZeroSizeError error = errors.New("zero-sized types are not supported")
