package domain

// Token计量为纯函数：同样的消息列表永远得到同样的成本，无任何状态

const (
	// 每条消息的固定编码开销（角色标记等）
	tokensPerMessage = 4
	// 每次请求的回复引导开销
	tokensPerReply = 3
)

// EstimateTextTokens 按Unicode感知的启发式估算文本Token数
// ASCII字符约4字符1个Token，非ASCII（CJK等）保守按1字符1个Token
func EstimateTextTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// EstimateImageTokens 按图片尺寸估算Token成本
// 512x512分块，每块170个Token外加85个基础Token
func EstimateImageTokens(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	tilesW := (width + 511) / 512
	tilesH := (height + 511) / 512
	return 85 + 170*tilesW*tilesH
}

// CountMessageTokens 估算单条消息的提示Token成本
func CountMessageTokens(m *Message) int {
	total := tokensPerMessage
	total += EstimateTextTokens(string(m.Role))
	total += EstimateTextTokens(m.Content)
	if m.FunctionName != "" {
		total += EstimateTextTokens(m.FunctionName)
	}
	if m.FunctionCall != nil {
		total += EstimateTextTokens(m.FunctionCall.Name)
		total += EstimateTextTokens(m.FunctionCall.Arguments)
	}
	for _, part := range m.Parts {
		switch part.Type {
		case PartTypeText:
			total += EstimateTextTokens(part.Text)
		case PartTypeImageURL:
			total += part.Tokens
		}
	}
	return total
}

// CountPromptTokens 估算消息列表作为提示的总Token成本
func CountPromptTokens(messages []*Message) int {
	total := tokensPerReply
	for _, m := range messages {
		total += CountMessageTokens(m)
	}
	return total
}
