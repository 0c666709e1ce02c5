// Package buildsys runs the project tasks declared in a Starlark script (tasks.star).
//
// The script declares options in its global scope and tasks inside its configure() function.
// Task commands are executed by the mvdan.cc/sh interpreter so the same script works on every
// platform without requiring a POSIX shell. Tasks can declare inputs and outputs to skip work
// that is already up to date, and watch patterns to re-run whenever matching files change.
package buildsys
