package orch

// TaskStatus is the outcome a task handler reports for one pending
// entry. The status decides whether the entry is removed from the
// pending map or retained for the next drain pass.
type TaskStatus int

const (
	// TaskSuccess means the entry was applied to the HAL and graph.
	TaskSuccess TaskStatus = iota
	// TaskInvalidEntry means the input is malformed and unrecoverable.
	TaskInvalidEntry
	// TaskFailed means the HAL rejected a well-formed request.
	TaskFailed
	// TaskNeedRetry means a dependency or resource is not yet
	// available; the entry stays pending.
	TaskNeedRetry
	// TaskIgnore means the entry is stale or superseded.
	TaskIgnore
	// TaskDuplicated means the requested state is already in effect.
	TaskDuplicated
)

func (s TaskStatus) String() string {
	switch s {
	case TaskSuccess:
		return "success"
	case TaskInvalidEntry:
		return "invalid_entry"
	case TaskFailed:
		return "failed"
	case TaskNeedRetry:
		return "need_retry"
	case TaskIgnore:
		return "ignore"
	case TaskDuplicated:
		return "duplicated"
	default:
		return "unknown"
	}
}

// RefResolveStatus is the finer-grained outcome of reference
// resolution. Handlers map it onto TaskStatus: ResolveNotResolved
// usually becomes TaskNeedRetry, the rest TaskInvalidEntry.
type RefResolveStatus int

const (
	ResolveSuccess RefResolveStatus = iota
	// ResolveFieldNotFound means the field is absent from the tuple.
	ResolveFieldNotFound
	// ResolveMultipleInstances means more than one object resolved
	// where exactly one is required.
	ResolveMultipleInstances
	// ResolveNotResolved means a referenced object does not exist yet.
	ResolveNotResolved
	// ResolveEmpty means the reference field carries no object name.
	ResolveEmpty
	// ResolveFailure means the reference syntax is malformed.
	ResolveFailure
)

func (s RefResolveStatus) String() string {
	switch s {
	case ResolveSuccess:
		return "success"
	case ResolveFieldNotFound:
		return "field_not_found"
	case ResolveMultipleInstances:
		return "multiple_instances"
	case ResolveNotResolved:
		return "not_resolved"
	case ResolveEmpty:
		return "empty"
	case ResolveFailure:
		return "failure"
	default:
		return "unknown"
	}
}
