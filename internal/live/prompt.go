package live

import (
	"fmt"
	"strings"

	"github.com/satriahrh/ami/domain/entities"
)

const basePrompt = `You are Ami, a warm and patient companion who chats with older adults to keep their minds active.
Keep every answer short and conversational, ask one gentle question at a time and never lecture.
Weave in light memory exercises: recalling personal stories, facts about the world, holding small lists in mind, planning, and reflecting on how they remember things.

Always answer with a single JSON object and nothing else:
{"aiResponse": "<what you say>", "expression": "<HAPPY|SAD|SURPRISED|NEUTRAL|THINKING|EXCITED|CONFUSED|WORRIED>", "questionCategory": "<autobiographical memory|semantic memory|working memory|executive functions|metacognition|none>", "conversationTopic": "<one or two words>"}`

// BuildInstructions renders the system prompt, personalised with whatever
// profile fields are set. A nil profile yields the generic prompt.
func BuildInstructions(profile *entities.UserProfile) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if profile == nil {
		return b.String()
	}

	var facts []string
	if name := strings.TrimSpace(profile.Nickname); name != "" {
		facts = append(facts, fmt.Sprintf("Call them %q.", name))
	}
	if profile.Age > 0 {
		facts = append(facts, fmt.Sprintf("They are %d years old.", profile.Age))
	}
	switch profile.Gender {
	case entities.GenderMale:
		facts = append(facts, "He is a man.")
	case entities.GenderFemale:
		facts = append(facts, "She is a woman.")
	}

	var hobbies []string
	for _, h := range profile.Hobbies {
		if h = strings.TrimSpace(h); h != "" {
			hobbies = append(hobbies, h)
		}
	}
	if len(hobbies) > 0 {
		facts = append(facts, fmt.Sprintf("Their interests: %s. Use them to pick topics.", strings.Join(hobbies, ", ")))
	}

	if len(facts) > 0 {
		b.WriteString("\n\nAbout the person you are talking to:\n")
		b.WriteString(strings.Join(facts, "\n"))
	}
	return b.String()
}
