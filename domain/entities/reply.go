package entities

import "strings"

// Expression is the avatar mood attached to an assistant reply
type Expression string

const (
	ExpressionHappy     Expression = "HAPPY"
	ExpressionSad       Expression = "SAD"
	ExpressionSurprised Expression = "SURPRISED"
	ExpressionNeutral   Expression = "NEUTRAL"
	ExpressionThinking  Expression = "THINKING"
	ExpressionExcited   Expression = "EXCITED"
	ExpressionConfused  Expression = "CONFUSED"
	ExpressionWorried   Expression = "WORRIED"
)

// Defaults applied to any reply field the model left out
const (
	DefaultExpression        = ExpressionNeutral
	DefaultQuestionCategory  = "general"
	DefaultConversationTopic = "general"
	// DefaultAIResponse stands in for turns that carried no text at all,
	// such as audio-only replies without an output transcript.
	DefaultAIResponse = "(audio reply)"
)

var knownExpressions = map[Expression]struct{}{
	ExpressionHappy:     {},
	ExpressionSad:       {},
	ExpressionSurprised: {},
	ExpressionNeutral:   {},
	ExpressionThinking:  {},
	ExpressionExcited:   {},
	ExpressionConfused:  {},
	ExpressionWorried:   {},
}

// ParseExpression maps free-form model output onto a known expression.
// Unknown or empty values collapse to DefaultExpression.
func ParseExpression(s string) Expression {
	e := Expression(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownExpressions[e]; ok {
		return e
	}
	return DefaultExpression
}

// StructuredReply is the schema-conforming view of one assistant turn
type StructuredReply struct {
	AIResponse        string     `json:"aiResponse" bson:"ai_response"`
	Expression        Expression `json:"expression" bson:"expression"`
	QuestionCategory  string     `json:"questionCategory" bson:"question_category"`
	ConversationTopic string     `json:"conversationTopic" bson:"conversation_topic"`
}

// Normalize fills every empty field with its default so the reply always
// passes persistence validation.
func (r StructuredReply) Normalize() StructuredReply {
	r.AIResponse = strings.TrimSpace(r.AIResponse)
	if r.AIResponse == "" {
		r.AIResponse = DefaultAIResponse
	}
	r.Expression = ParseExpression(string(r.Expression))
	r.QuestionCategory = strings.TrimSpace(r.QuestionCategory)
	if r.QuestionCategory == "" {
		r.QuestionCategory = DefaultQuestionCategory
	}
	r.ConversationTopic = strings.TrimSpace(r.ConversationTopic)
	if r.ConversationTopic == "" {
		r.ConversationTopic = DefaultConversationTopic
	}
	return r
}

// FallbackReply wraps raw model text in a reply carrying default metadata.
func FallbackReply(text string) StructuredReply {
	return StructuredReply{AIResponse: text}.Normalize()
}
