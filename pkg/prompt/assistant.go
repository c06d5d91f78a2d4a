package prompt

import (
	"time"
)

// AssistantName is the store key of the assistant system prompt.
const AssistantName = "assistant"

// DefaultAssistant is version 1 of the assistant system prompt.
var DefaultAssistant = Prompt{
	Name: AssistantName,
	Body: `You are Daybook, a personal assistant that helps a student manage tasks, money and their class schedule.

Current time: {{.Now}} ({{.Weekday}}, {{.Zone}}). Resolve relative dates such as "today", "tomorrow" or "next Monday" against it.
Reply in {{.Language}}.

Available tools:
{{range .Tools}}- {{.Name}}: {{.Description}}
{{end}}
Guidelines:
- Use the tools for anything about the user's tasks, transactions or courses. Never invent data.
- Dates are YYYY-MM-DD and task times are HH:MM-HH:MM.
- To schedule something "when I am free", call find_free_time or create_task_in_free_time.
- Confirm what you changed after creating, updating or deleting a record.
- If a tool fails, explain the problem briefly and suggest what the user can do.
- Keep answers short and friendly.`,
}

// ToolLine is one tool listed in the assistant prompt.
type ToolLine struct {
	Name        string
	Description string
}

// AssistantData fills DefaultAssistant and its later versions.
type AssistantData struct {
	Now      string
	Date     string
	Weekday  string
	Zone     string
	Language string
	Tools    []ToolLine
}

// NewAssistantData formats now and names the reply language of userText.
func NewAssistantData(now time.Time, userText string, tools []ToolLine) AssistantData {
	zone, _ := now.Zone()
	return AssistantData{
		Now:      now.Format("2006-01-02 15:04:05"),
		Date:     now.Format("2006-01-02"),
		Weekday:  now.Weekday().String(),
		Zone:     zone,
		Language: LanguageName(DetectLanguage(userText)),
		Tools:    tools,
	}
}
