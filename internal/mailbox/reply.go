package mailbox

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"inboxpilot/internal/model"
)

// WriteReply 把回复写成 RFC 5322 纯文本邮件
func WriteReply(w io.Writer, reply model.Reply, now time.Time) error {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("To", []*mail.Address{{Address: reply.To}})
	h.SetSubject(reply.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if reply.InReplyTo != "" {
		h.Set("In-Reply-To", reply.InReplyTo)
		h.Set("References", reply.InReplyTo)
	}

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("create reply writer: %w", err)
	}
	if _, err := io.WriteString(body, reply.Body); err != nil {
		body.Close()
		return fmt.Errorf("write reply body: %w", err)
	}
	return body.Close()
}
