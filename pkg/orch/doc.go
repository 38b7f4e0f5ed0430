// Package orch implements the reconciliation core of the switch
// orchestration agent: change-log consumption with task consolidation,
// the cross-table object-reference graph used to resolve symbolic
// references and order destructive operations, and the bounded ring
// buffer that hands deferred work to a drainer goroutine.
package orch
