// Package dispatch implements the scheduling loop: ordered walk of the job
// list, sync/async/barrier dispatch semantics, load-governed admission, and
// the guarantee that every issued job is joined before the loop returns.
package dispatch
