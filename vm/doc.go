// Package vm implements the Lunar embedded value runtime.
//
// This package contains:
//   - NaN-boxed value representation
//   - The State: value stack, globals table, slot registry, heap registries
//   - Tables with metatables and the native next-key iteration protocol
//   - Native Go functions callable from runtime operations
//   - Mark/sweep collection over the heap registries
package vm
