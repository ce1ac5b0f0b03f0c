package biz

import (
	"strings"

	"chatassistant/cmd/assistant-service/internal/domain"
)

// 分段边界的偏好顺序：换行、句号、空格
var splitSeparators = []string{"\n", ".", " "}

// SplitMessage 把超长消息按传输上限切分为多条
// 在上限之内优先找换行，其次句号，再次空格；都没有时硬切
func SplitMessage(message *domain.Message, maxLength int) []*domain.Message {
	content := message.Content
	if len(content) <= maxLength {
		return []*domain.Message{message}
	}

	var parts []string
	for len(content) > maxLength {
		cut := -1
		for _, sep := range splitSeparators {
			if idx := strings.LastIndex(content[:maxLength], sep); idx != -1 {
				cut = idx
				break
			}
		}
		if cut == -1 {
			parts = append(parts, content[:maxLength])
			content = content[maxLength:]
		} else {
			parts = append(parts, content[:cut])
			content = content[cut+1:]
		}
	}
	parts = append(parts, content)

	messages := make([]*domain.Message, len(parts))
	for i, part := range parts {
		messages[i] = message.WithContent(part)
	}
	return messages
}
