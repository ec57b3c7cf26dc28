// Package domain defines the core business types for the CRM outreach engine.
//
// Types in this package are plain value objects shared by services,
// repositories and HTTP handlers. They carry no database handles and no
// transport concerns.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Small pure helpers on the types are allowed
package domain
