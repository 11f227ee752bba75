//go:build oscdebug

package packet

// Built with the oscdebug tag: state violations panic.
const panicOnStateError = true
