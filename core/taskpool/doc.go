// Package taskpool runs units of work on a fixed set of workers that pull
// from one bounded queue. Each worker owns private resources created by
// factories when the pool starts and released by matching teardowns when it
// exits. Submit blocks while the queue is full. Join drains the backlog and
// shuts the pool down; Stop abandons queued work and lets in-flight tasks
// finish.
package taskpool
