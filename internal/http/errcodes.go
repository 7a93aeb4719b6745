package http

const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInternal        = "INTERNAL"
	ErrCodeValidation      = "VALIDATION"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeGroupExists     = "GROUP_EXISTS"
	ErrCodeMatchingRunning = "MATCHING_RUNNING"
)
