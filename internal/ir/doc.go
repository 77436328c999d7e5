// Package ir provides the closed value variant stored in entity attributes.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal.
//
// Every attribute slot holds exactly one IRValue:
//   - Scalars: IRString, IRInt, IRFloat, IRBool, IRBytes, IRNull
//   - References: IRRef holds the referenced entity's global id, never a pointer
//   - Containers: IRList (ordered, duplicates allowed), IRSet (insertion
//     ordered, unique members) and IRMap (string keys)
//
// Containers are treated as immutable once stored. Mutating helpers
// (With, Without, Append) return a fresh value and leave the receiver intact.
package ir
