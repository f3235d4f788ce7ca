// Package domain defines the core business types for BIG-IP ASM policy
// imports.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no HTTP, no device transport)
// - Validated once at construction and immutable afterwards
// - Testable in isolation without mocks
//
// Other packages (bigip, importer, guard, storage) implement behavior around
// these types and depend on them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
