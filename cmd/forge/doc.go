// Command forge is the build orchestrator CLI: it dispatches the per-module
// build jobs for a platform, keeps the run journal, and checks the external
// tools a run depends on.
package main
