// Package reply interprets the text of an assistant turn as the JSON envelope
// the system prompt asks for, degrading to a raw-text reply when it is not.
package reply

import (
	"encoding/json"
	"strings"

	"github.com/satriahrh/ami/domain/entities"
)

// envelope mirrors the JSON object the model is instructed to emit
type envelope struct {
	AIResponse        *string `json:"aiResponse"`
	Expression        *string `json:"expression"`
	QuestionCategory  *string `json:"questionCategory"`
	ConversationTopic *string `json:"conversationTopic"`
}

// Parse always returns a fully populated reply
func Parse(text string) entities.StructuredReply {
	reply, _ := ParseWithStatus(text)
	return reply
}

// ParseWithStatus is Parse that also reports whether the raw-text fallback was used
func ParseWithStatus(text string) (reply entities.StructuredReply, fellBack bool) {
	raw := strings.TrimSpace(text)

	env, ok := decode(raw)
	if !ok || env.AIResponse == nil || strings.TrimSpace(*env.AIResponse) == "" {
		return entities.FallbackReply(raw), true
	}

	reply.AIResponse = strings.TrimSpace(*env.AIResponse)
	if env.Expression != nil {
		reply.Expression = entities.Expression(*env.Expression)
	}
	if env.QuestionCategory != nil {
		reply.QuestionCategory = *env.QuestionCategory
	}
	if env.ConversationTopic != nil {
		reply.ConversationTopic = *env.ConversationTopic
	}
	return reply.Normalize(), false
}

func decode(raw string) (envelope, bool) {
	candidates := []string{raw}
	if unfenced := stripFence(raw); unfenced != raw {
		candidates = append(candidates, unfenced)
	}
	if obj := outermostObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	for _, candidate := range candidates {
		var env envelope
		if err := json.Unmarshal([]byte(candidate), &env); err == nil {
			return env, true
		}
	}
	return envelope{}, false
}

// stripFence removes a surrounding ``` or ```json markdown fence
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// language tag such as "json"
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[\"") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// outermostObject returns the text between the first '{' and the last '}'
func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
