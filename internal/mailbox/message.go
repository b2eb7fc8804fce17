package mailbox

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"inboxpilot/internal/model"
)

const (
	defaultSender  = "Unknown Sender"
	defaultSubject = "No Subject"
)

// itemFromMessage 把 Gmail 消息投影成 MailboxItem
func itemFromMessage(msg *gmail.Message) model.MailboxItem {
	item := model.MailboxItem{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Sender:   defaultSender,
		Subject:  defaultSubject,
	}
	if msg.Payload == nil {
		return item
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			if h.Value != "" {
				item.Sender = h.Value
			}
		case "subject":
			if h.Value != "" {
				item.Subject = h.Value
			}
		case "message-id":
			item.MessageID = h.Value
		}
	}
	item.Body = plainText(msg.Payload)
	return item
}

// plainText 深度优先找第一个带数据的 text/plain 部分，只有 HTML 的邮件返回空
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(part.MimeType), "text/plain") && part.Body != nil && part.Body.Data != "" {
		if text, ok := decodeBody(part.Body.Data); ok {
			return text
		}
	}
	for _, child := range part.Parts {
		if text := plainText(child); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody Gmail 返回 base64url，有时带填充有时不带
func decodeBody(data string) (string, bool) {
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b), true
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}
