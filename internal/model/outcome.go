package model

// 结果动作词表，客户端根据它决定下一步
const (
	OutcomeReadSuccess     = "read_success"
	OutcomeConfirmDelete   = "confirm_delete"
	OutcomeConfirmSend     = "confirm_send"
	OutcomeNeedsRefinement = "needs_refinement"
	OutcomeUnknown         = "unknown"
	OutcomeReplySuggested  = "reply_suggested"
	OutcomeStatus          = "status"
)

// CommandOutcome 统一响应信封
type CommandOutcome struct {
	Message string `json:"response"`
	Action  string `json:"action"`
	Data    any    `json:"data,omitempty"`
}

// ReadData read_success 的载荷
type ReadData struct {
	Emails []SummarizedItem `json:"emails"`
}

// PendingDelete 等待确认的删除
type PendingDelete struct {
	EmailID      string `json:"email_id"`
	ConfirmToken string `json:"confirm_token,omitempty"`
}

// PendingSend 等待确认的发送
type PendingSend struct {
	OriginalEmailID string `json:"original_email_id"`
	ReplyBody       string `json:"reply_body"`
	ConfirmToken    string `json:"confirm_token,omitempty"`
}

// RefinementData 回显原始意图，便于客户端引导用户补充信息
type RefinementData struct {
	Intent IntentEcho `json:"intent"`
}

// IntentEcho 意图的外部表示
type IntentEcho struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// SuggestedReply reply_suggested 的载荷
type SuggestedReply struct {
	OriginalEmailID string `json:"original_email_id"`
	ProposedReply   string `json:"proposed_reply"`
}

// DeleteResult delete-email 的响应
type DeleteResult struct {
	Status  string `json:"status"`
	Message string `json:"response"`
}
