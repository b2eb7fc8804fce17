package model

import "golang.org/x/oauth2"

// Credential 当前请求的邮箱授权，核心流程把它当作不透明的凭据
type Credential struct {
	SessionID   string
	TokenSource oauth2.TokenSource
	Scopes      []string
	DisplayName string
	Email       string
}
