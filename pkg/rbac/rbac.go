package rbac

import "fmt"

// 邮箱操作权限
const (
	PermissionReadMail   = "mail:read"
	PermissionSendMail   = "mail:send"
	PermissionModifyMail = "mail:modify"
)

// OAuth 授权范围
const (
	ScopeFullAccess = "https://mail.google.com/"
	ScopeReadonly   = "https://www.googleapis.com/auth/gmail.readonly"
	ScopeSend       = "https://www.googleapis.com/auth/gmail.send"
	ScopeModify     = "https://www.googleapis.com/auth/gmail.modify"
)

// 授权范围 -> 权限映射
var scopePermissions = map[string][]string{
	ScopeFullAccess: {PermissionReadMail, PermissionSendMail, PermissionModifyMail},
	ScopeModify:     {PermissionReadMail, PermissionSendMail, PermissionModifyMail},
	ScopeReadonly:   {PermissionReadMail},
	ScopeSend:       {PermissionSendMail},
}

// HasPermission 检查授权范围是否包含指定权限
// 授权范围未知（空列表）时放行，交给邮箱服务端判断
func HasPermission(grantedScopes []string, permission string) bool {
	if len(grantedScopes) == 0 {
		return true
	}
	for _, scope := range grantedScopes {
		for _, p := range scopePermissions[scope] {
			if p == permission {
				return true
			}
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于处理
func CheckPermission(grantedScopes []string, permission string) error {
	if !HasPermission(grantedScopes, permission) {
		return &PermissionDeniedError{Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示授权范围不足
type PermissionDeniedError struct {
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("insufficient permissions: %s not granted", e.Permission)
}
