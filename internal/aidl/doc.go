// Package aidl turns aidl_library metadata into aidl compiler invocations.
//
// Libraries are built bottom-up with NewLibrary; each one carries its own
// sources plus the include roots and sources of everything it imports.
// Assemble takes the libraries a cc_aidl_library depends on and produces a
// Unit: the exact files aidl is going to write, the single Invocation that
// writes them, and the headers and include directory downstream C++ code
// compiles against.
//
// Everything in this package is pure. Running the compiler is left to the
// generators in internal/builder/gen.
package aidl
