// Package tools runs the external collaborator programs (build driver,
// interface generator, component compiler, sync and overlay utilities) as
// opaque subprocesses. The contract is exit status only: zero is success,
// anything else is a job failure. Each tool runs in its own process group so
// an aborted run can terminate the tool together with its children.
package tools
