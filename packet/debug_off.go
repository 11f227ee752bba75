//go:build !oscdebug

package packet

const panicOnStateError = false
