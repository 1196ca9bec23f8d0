// Package feedback runs the learning feedback loop.
//
// On a fixed interval (default five minutes, first tick after a short
// initial delay) the loop walks every agent in the capability directory,
// asks the outcome learner for its statistics and, once an agent has at
// least MinSamples executions, writes the learner's blended rate back into
// the directory.
//
// A tick never crashes the process: per-agent failures are counted and
// logged, and the tick installs a single recover point that degrades any
// panic to a warning. The next tick runs as scheduled.
package feedback
