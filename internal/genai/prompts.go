package genai

import (
	"fmt"
	"strings"
)

// Prompt builders live here so the wire client stays free of product
// wording. The personality label only shapes tone; it never changes
// what is asked for.

func persona(personality string) string {
	if personality == "" {
		personality = "mentor"
	}
	return fmt.Sprintf("You are an onboarding %s helping a new engineer learn a codebase. Be concise and encouraging.", personality)
}

// taskBatchPrompt requests exactly three tasks in the pipe/dash grammar
// that catalog.ParseGeneratedTasks understands
func taskBatchPrompt(role, level, repository, personality string) []Message {
	user := fmt.Sprintf(
		"Generate exactly 3 onboarding tasks for a %s %s exploring the repository %q.\n"+
			"Output one task per line, no extra prose, in this format:\n"+
			"Task N: <title> - <description> - Type: <terminal|explore|qa> - File: <path, optional>\n"+
			"Use the dash as the only field separator.",
		level, role, repository,
	)
	return []Message{
		{Role: "system", Content: persona(personality)},
		{Role: "user", Content: user},
	}
}

func hintPrompt(taskTitle, taskDescription, personality string) []Message {
	user := fmt.Sprintf(
		"The engineer is stuck on this onboarding task.\nTitle: %s\nDescription: %s\n"+
			"Give one short hint (max 2 sentences) that nudges them forward without giving the answer away.",
		taskTitle, taskDescription,
	)
	return []Message{
		{Role: "system", Content: persona(personality)},
		{Role: "user", Content: user},
	}
}

func evaluationPrompt(question, expected, answer string) []Message {
	user := fmt.Sprintf(
		"Question: %s\nExpected answer: %s\nUser answer: %s\n"+
			"Score the user answer from 0 to 100 for correctness. "+
			"Reply with the score in the form \"N/100\" followed by one sentence of feedback.",
		question, expected, answer,
	)
	return []Message{
		{Role: "system", Content: "You are a strict but fair grader of short technical answers."},
		{Role: "user", Content: user},
	}
}

func closingPrompt(role string, elapsedMinutes int, struggledWith []string, personality string) []Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A new %s just finished their onboarding curriculum in %d minutes.", role, elapsedMinutes)
	if len(struggledWith) > 0 {
		fmt.Fprintf(&sb, " They needed several attempts on: %s.", strings.Join(struggledWith, ", "))
	}
	sb.WriteString(" Write a short personalized congratulation (max 3 sentences).")
	return []Message{
		{Role: "system", Content: persona(personality)},
		{Role: "user", Content: sb.String()},
	}
}
