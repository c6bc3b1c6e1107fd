package handler

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var jokes = []string{
	"Why do programmers prefer dark mode?\nBecause light attracts bugs! 🐛",
	"What's the difference between a computer and a person?\nThe computer does exactly what you told it to.",
	"Why don't Go programmers get lost?\nThey always handle their errors. 🐹",
}

const cannedHelp = "🤖 Commands:\n" +
	"• `hello` / `hi` - greeting and command list\n" +
	"• `status` - application status\n" +
	"• `joke` - a random joke"

// cannedReply answers by keyword, mirroring the keyword bot that predates the
// AI integration
func cannedReply(text string) string {
	words := keywords(text)

	switch {
	case words["hello"] || words["hi"]:
		return "👋 Hello! I'm the Slack Dify bot.\n" + cannedHelp
	case words["status"]:
		return "✅ The application is running normally."
	case words["help"]:
		return cannedHelp
	case words["joke"]:
		return jokes[rand.IntN(len(jokes))]
	default:
		return fmt.Sprintf("Message received: %s\nType `hello` or `help` to see what I can do.", text)
	}
}

func keywords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		words[strings.Trim(f, ".,!?:;\"'`*_()")] = true
	}
	return words
}
