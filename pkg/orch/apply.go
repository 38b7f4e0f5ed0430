package orch

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
)

// ApplyConfig describes how one table's tuples map onto HAL objects.
type ApplyConfig struct {
	// Table is the object-table this handler applies.
	Table string
	// RefFields maps a reference field to the table it references.
	// Absent fields are skipped; present fields must resolve.
	RefFields map[string]string
	// ListFields marks reference fields that carry a delimited list of
	// object names instead of exactly one.
	ListFields map[string]bool
}

// ApplyHandler is the generic task handler: it resolves reference
// fields through the object graph, drives idempotent create/set/remove
// calls against the HAL, and keeps the graph consistent. Typed
// orchestrators replace it with their own handlers; this one carries
// no per-object-type semantics.
type ApplyHandler struct {
	cfg    ApplyConfig
	hal    HAL
	refs   *RefMap
	logger *zap.Logger
}

// NewApplyHandler creates the generic handler for one table.
func NewApplyHandler(cfg ApplyConfig, hal HAL, refs *RefMap, logger *zap.Logger) *ApplyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplyHandler{cfg: cfg, hal: hal, refs: refs, logger: logger}
}

// ProcessTask implements TaskHandler.
func (h *ApplyHandler) ProcessTask(ctx context.Context, t Tuple) TaskStatus {
	switch t.Op {
	case OpSet:
		return h.applySet(ctx, t)
	case OpDel:
		return h.applyDel(t)
	default:
		h.logger.Warn("unknown operation",
			zap.String("table", h.cfg.Table),
			zap.String("key", t.Key),
			zap.String("op", string(t.Op)))
		return TaskInvalidEntry
	}
}

func (h *ApplyHandler) applySet(ctx context.Context, t Tuple) TaskStatus {
	fields := make([]string, 0, len(h.cfg.RefFields))
	for f := range h.cfg.RefFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		refTable := h.cfg.RefFields[field]
		var status RefResolveStatus
		if h.cfg.ListFields[field] {
			_, _, status = h.refs.ResolveFieldRefArray(h.cfg.Table, t.Key, field, refTable, t)
		} else {
			_, _, status = h.refs.ResolveFieldRef(h.cfg.Table, t.Key, field, refTable, t)
		}
		switch status {
		case ResolveSuccess:
		case ResolveFieldNotFound:
			// optional reference, not part of this update
		case ResolveNotResolved:
			h.logger.Debug("reference not yet resolvable, retrying later",
				zap.String("table", h.cfg.Table),
				zap.String("key", t.Key),
				zap.String("field", field),
				zap.String("ref_table", refTable))
			return TaskNeedRetry
		default:
			h.logger.Warn("unresolvable reference field",
				zap.String("table", h.cfg.Table),
				zap.String("key", t.Key),
				zap.String("field", field),
				zap.String("status", status.String()))
			return TaskInvalidEntry
		}
	}

	if handle, ok := h.refs.DoesObjectExist(h.cfg.Table, t.Key); ok && handle != NullHandle {
		if err := h.hal.Set(ctx, h.cfg.Table, handle, t.Fields); err != nil {
			h.logger.Error("HAL set rejected",
				zap.String("table", h.cfg.Table),
				zap.String("key", t.Key),
				zap.Error(err))
			return TaskFailed
		}
		return TaskSuccess
	}

	handle, err := h.hal.Create(ctx, h.cfg.Table, t.Key, t.Fields)
	switch {
	case errors.Is(err, ErrObjectExists):
		// warm restart: the HAL already holds this object, relearn its handle
		h.refs.Set(h.cfg.Table, t.Key, handle)
		return TaskDuplicated
	case errors.Is(err, ErrResourceExhausted):
		h.logger.Warn("HAL resources exhausted, retrying later",
			zap.String("table", h.cfg.Table),
			zap.String("key", t.Key))
		return TaskNeedRetry
	case err != nil:
		h.logger.Error("HAL create rejected",
			zap.String("table", h.cfg.Table),
			zap.String("key", t.Key),
			zap.Error(err))
		return TaskFailed
	}
	h.refs.Set(h.cfg.Table, t.Key, handle)
	return TaskSuccess
}

func (h *ApplyHandler) applyDel(t Tuple) TaskStatus {
	if _, ok := h.refs.DoesObjectExist(h.cfg.Table, t.Key); !ok {
		return TaskIgnore
	}
	// RemoveObject either finalizes now (invoking the HAL remover) or
	// marks the object pending removal until its last dependent
	// detaches; the delete intent is consumed either way.
	h.refs.RemoveObject(h.cfg.Table, t.Key)
	return TaskSuccess
}
