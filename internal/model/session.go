package model

import "time"

// Session 持久化的 OAuth 会话
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       []string
	Username     string
	Email        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
