/*
Package tasks implements the concurrent task layer.

A task is an ordered list of agents submitted together. Tasks run on a bounded
worker pool; the agents of one task run one after the other. Every status
change is written to a ports.TaskStore under a per-task lock, optionally
backed by a distributed locker when several instances share one store.

	pending -> loading -> running -> success | failure | stopped
*/
package tasks
