// Package mix models the registers, memory and instruction format of Knuth's MIX computer.
//
// Bytes hold six bits (0..63). Words, registers and instructions are sign-magnitude values built
// from those bytes.
package mix
