// parser/statements.go - Main statement parsing entry point
//
// This file has been split into focused modules for maintainability:
// - statements_package.go: Package and import declarations
// - statements_traits.go: Trait and instance declarations
// - statements_functions.go: Function declarations and parameters
// - statements_types.go: Type declarations and constructors
// - statements_control.go: Control flow, constants, expressions, and blocks

package parser

// All statement parsing functions are now distributed across the focused modules above.
// This file serves as the main entry point and maintains the package structure.
