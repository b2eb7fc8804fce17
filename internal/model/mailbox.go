package model

// MailboxItem 单封邮件的只读投影，每次请求重新拉取，不缓存
type MailboxItem struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
	// MessageID 是 RFC 5322 Message-ID 头，回复时写入 In-Reply-To
	MessageID string `json:"-"`
}

// SummarizedItem 带摘要的邮件，read 分支的输出元素
type SummarizedItem struct {
	MailboxItem
	Summary string `json:"summary"`
}

// Reply 同线程回复
type Reply struct {
	To        string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}
