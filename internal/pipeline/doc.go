// Package pipeline composes the simulate, fit, evaluate and report stages
// into one step graph and drives it on the DAG executor.
//
// Every step is declared up front with its kind, self-describing parameters,
// input files and output files, all relative to the working directory. The
// step functions read their parameters from the task alone, so a task's
// signature covers everything that influences its outputs and incremental
// runs can replay unchanged steps from cache.
//
// The run is fail-fast: the first failing step stops dispatch, every step
// that has not started is skipped, no report is produced, and the failing
// step's original error is returned wrapped in a *model.StepError.
package pipeline
