// Package bind gives host Go code safe, reference-counted access to
// values living in a Lunar State's managed heap.
//
// A Ref pins one runtime value through a registry slot for as long as the
// host holds it; the value stays alive across collections until the Ref
// is released. A Field represents a not-yet-materialized table field as a
// first-class value, and a Cursor walks a table's entries in a single
// forward pass using the runtime's native iteration protocol.
//
// Fields and Cursors are always derived from a Ref and borrow its table
// slot; they must not outlive the Ref they came from.
//
// Every operation restores the State's value stack to its pre-call depth,
// on the fault paths included.
package bind
