/*
Package errors provides structured error handling for the system.

It defines a standard AppError type that includes:
  - Error Code (standardized strings like NOT_FOUND, INTERNAL)
  - Message (human-readable description)
  - Underlying Error (chaining)

Domain packages declare their own code constants and Err* constructors in a
package-local errors.go, all built on AppError so callers can branch on
Code(err) regardless of origin.
*/
package errors
