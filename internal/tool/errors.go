package tool

import "errors"

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrInvalidInput   = errors.New("invalid tool input")
	ErrDuplicateTool  = errors.New("duplicate tool name")
	ErrInvalidTool    = errors.New("invalid tool")
	ErrHandlerPanic   = errors.New("tool handler panicked")
	ErrMissingHandler = errors.New("tool has no handler")
)
