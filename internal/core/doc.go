// Package core runs a single pipeline step deterministically.
//
// A Task declares a step kind, its resolved input files, its parameters and
// the output files it promises to write. The Runner hashes those
// declarations (plus the content of every input) into a TaskHash, replays
// cached artifacts on a hit and otherwise dispatches the step function
// registered for the task's kind, harvesting the declared outputs into the
// cache on success.
//
// Failed steps are never cached and never update the cache; a re-run
// executes them again.
package core
