package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inboxpilot/internal/model"
)

// CredentialKey 认证中间件把 *model.Credential 存在这个 key 下
const CredentialKey = "credential"

// credential 统一的凭据读取工具
func credential(c *gin.Context) (*model.Credential, bool) {
	v, ok := c.Get(CredentialKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated. Please log in."})
		return nil, false
	}
	cred, ok := v.(*model.Credential)
	if !ok || cred == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated. Please log in."})
		return nil, false
	}
	return cred, true
}
