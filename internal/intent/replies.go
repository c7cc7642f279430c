package intent

import "hash/fnv"

var replies = map[string][]string{
	Greeting: {
		"Great to see you! How can I assist you today?",
		"Hi there! What would you like to know?",
		"Hello! I'm ready to help. What do you need?",
	},
	Question: {
		"That's a great question! I'd be happy to help explain that.",
		"I understand your curiosity. Let me provide some insights.",
		"That's something I can definitely help clarify.",
	},
	Request: {
		"I'll be glad to help you with that. Let me process your request.",
		"Understood! I'm working on fulfilling your request.",
		"You got it! Let me take care of that for you.",
	},
	Feedback: {
		"Thank you so much for the positive feedback! It means a lot.",
		"I'm delighted to hear that! Your support keeps me improving.",
		"Your kind words motivate me to serve you better!",
	},
	Help: {
		"I'm here to help! Tell me more about what you need.",
		"I understand you need assistance. How can I support you?",
		"Let me help you with that. What specific area do you need support with?",
	},
}

// Reply picks a canned assistant response for label. The choice depends only
// on label and text, so retrying the same message yields the same reply.
// Unknown labels use the help replies.
func Reply(label, text string) string {
	pool, ok := replies[label]
	if !ok {
		pool = replies[Help]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return pool[h.Sum32()%uint32(len(pool))]
}
