package service

import "errors"

var (
	ErrNoValidMessages = errors.New("No valid messages provided")
	ErrSessionBusy     = errors.New("session is busy")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotUserMessage  = errors.New("only user messages can be edited")
	// ErrStaleDocument 生成期间会话被重置或消息被编辑，结果作废
	ErrStaleDocument = errors.New("session changed during document generation")
)
