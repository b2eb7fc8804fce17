package intent

// Action 意图动作，封闭枚举
type Action string

const (
	ActionRead    Action = "read"
	ActionRespond Action = "respond"
	ActionDelete  Action = "delete"
	ActionUnknown Action = "unknown"
)

// Intent 分类结果。只有本包内的四种变体实现该接口
type Intent interface {
	Action() Action
	// Params 返回用于回显的参数，只包含已提取的字段
	Params() map[string]any
	isIntent()
}

// Target 用于定位单封邮件的过滤条件
type Target struct {
	Sender         string
	SubjectKeyword string
}

// Empty 两个过滤条件都没有时无法定位
func (t Target) Empty() bool {
	return t.Sender == "" && t.SubjectKeyword == ""
}

func (t Target) fill(p map[string]any) {
	if t.Sender != "" {
		p["sender"] = t.Sender
	}
	if t.SubjectKeyword != "" {
		p["subject_keyword"] = t.SubjectKeyword
	}
}

// Read 读取最近 Count 封邮件
type Read struct {
	Count int
}

func (Read) Action() Action { return ActionRead }
func (r Read) Params() map[string]any {
	return map[string]any{"count": r.Count}
}
func (Read) isIntent() {}

// Respond 回复某封邮件。EmailNumber 指向之前展示过的列表序号（从 1 开始），目前不参与定位
type Respond struct {
	Target       Target
	ReplyContent string
	EmailNumber  int
}

func (Respond) Action() Action { return ActionRespond }
func (r Respond) Params() map[string]any {
	p := map[string]any{}
	r.Target.fill(p)
	if r.ReplyContent != "" {
		p["reply_content"] = r.ReplyContent
	}
	if r.EmailNumber > 0 {
		p["email_number"] = r.EmailNumber
	}
	return p
}
func (Respond) isIntent() {}

// Delete 把某封邮件移到回收站
type Delete struct {
	Target      Target
	EmailNumber int
}

func (Delete) Action() Action { return ActionDelete }
func (d Delete) Params() map[string]any {
	p := map[string]any{}
	d.Target.fill(p)
	if d.EmailNumber > 0 {
		p["email_number"] = d.EmailNumber
	}
	return p
}
func (Delete) isIntent() {}

// Unknown 无法理解的命令
type Unknown struct{}

func (Unknown) Action() Action         { return ActionUnknown }
func (Unknown) Params() map[string]any { return map[string]any{} }
func (Unknown) isIntent()              {}
