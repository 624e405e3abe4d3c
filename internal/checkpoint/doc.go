// Package checkpoint stages a run's output-tree writes so they commit or
// discard atomically with respect to the real tree. Jobs see a union view;
// only the single commit step, executed after all jobs have finished and only
// for a successful run, mutates the canonical output tree.
package checkpoint
