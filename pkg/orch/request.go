package orch

import (
	"context"

	"go.uber.org/zap"
)

// Request is the narrow contract to the external request-parsing
// collaborator: it turns one raw tuple into a typed request.
type Request interface {
	// Parse validates the tuple and loads it into the request. An
	// error means the entry is malformed and unrecoverable.
	Parse(t Tuple) error
	// Clear resets the request for reuse.
	Clear()
}

// RequestOps is the pair of idempotent apply operations a typed
// orchestrator implements. A false return means the operation could
// not complete yet and the entry should be retried.
type RequestOps interface {
	AddOperation(ctx context.Context, req Request) bool
	DelOperation(ctx context.Context, req Request) bool
}

// RequestHandler binds one typed request parser to the generic
// add/remove operation contract: parse failures drop the entry as
// invalid, upserts dispatch to AddOperation, deletes to DelOperation,
// and a false result maps to need_retry.
type RequestHandler struct {
	request Request
	ops     RequestOps
	logger  *zap.Logger
}

// NewRequestHandler creates a handler around one request instance.
// The request is reused across entries; processing is single-threaded
// per table.
func NewRequestHandler(request Request, ops RequestOps, logger *zap.Logger) *RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestHandler{request: request, ops: ops, logger: logger}
}

// ProcessTask implements TaskHandler.
func (h *RequestHandler) ProcessTask(ctx context.Context, t Tuple) TaskStatus {
	defer h.request.Clear()

	if err := h.request.Parse(t); err != nil {
		h.logger.Warn("failed to parse request",
			zap.String("key", t.Key),
			zap.String("op", string(t.Op)),
			zap.Error(err))
		return TaskInvalidEntry
	}

	var ok bool
	switch t.Op {
	case OpSet:
		ok = h.ops.AddOperation(ctx, h.request)
	case OpDel:
		ok = h.ops.DelOperation(ctx, h.request)
	default:
		h.logger.Warn("unknown operation",
			zap.String("key", t.Key),
			zap.String("op", string(t.Op)))
		return TaskInvalidEntry
	}
	if !ok {
		return TaskNeedRetry
	}
	return TaskSuccess
}
