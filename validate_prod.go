//go:build !debug_stockpile

package stockpile

// DebugAssert panics with a formatted message when the provided condition is false. Assertions
// guard caller contracts (pointer ownership, double release, liveness of dereferenced slots) and
// no-op unless the debug_stockpile build tag is present.
func DebugAssert(condition bool, format string, args ...any) {
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_stockpile build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_stockpile build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
