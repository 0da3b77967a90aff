// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes independent operations concurrently and returns
// the first error. [RunBounded] does the same with a concurrency cap and
// early cancellation, which is how stage bodies honour their worker limits.
package async
