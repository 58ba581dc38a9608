// Package integration contains the Integration bounded context.
// This context manages access to the remote order-management platform that is
// the source of truth for sales.
//
// Key concepts:
//   - OrderPlatform: Port interface for the remote API (paginated order search
//     plus point lookup by order id)
//   - OrderDocument: Value object mirroring the raw remote order document,
//     every nested section optional
//   - TokenProvider: Port yielding a valid bearer token for an account
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
