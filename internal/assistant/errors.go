package assistant

import "errors"

var (
	// ErrMissingEmailID 调用方未提供邮件 id
	ErrMissingEmailID = errors.New("assistant: email id is required")
	// ErrMissingReplyBody 调用方未提供回复正文
	ErrMissingReplyBody = errors.New("assistant: reply body is required")
	// ErrServiceFailure 邮箱或 AI 服务失败，不返回部分结果
	ErrServiceFailure = errors.New("assistant: service failure")
)
