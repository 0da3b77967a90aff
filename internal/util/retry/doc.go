// Package retry provides exponential backoff retry logic for transient failures.
//
// [Do] retries an operation under a [Policy]. Stage bodies use it for
// marketplace calls. Errors wrapped with [Fatal] stop the loop immediately,
// and the stage runner treats them as terminal for the whole stage.
package retry
