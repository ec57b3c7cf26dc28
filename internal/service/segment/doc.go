// Package segment resolves dynamic audiences.
//
// A segment's criteria are folded into a Filter, a conjunction of validated
// predicates over contact fields. The service hands the Filter to the
// repository, which replaces the segment's membership in a single
// transaction. The same Filter can be evaluated in memory with Matches, which
// the in-memory repository and the tests rely on.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package segment
