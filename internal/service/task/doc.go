// Package task implements the human approval boundary for automation
// tasks. A task moves pending -> approved -> executed|failed, or
// pending -> rejected. Approval executes the task synchronously.
package task
