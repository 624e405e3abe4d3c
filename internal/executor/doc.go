// Package executor runs a single job: it validates the source directory,
// honors the applicability and discovery markers, maintains the job's working
// mirror, and dispatches requested files to the extension-specific build
// actions. All observable effects are filesystem writes under the mirror;
// the only result signal is success or failure.
package executor
