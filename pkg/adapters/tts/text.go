package tts

import "strings"

var markupReplacer = strings.NewReplacer(
	"[[SEARCH:", "Searching for",
	"]]", "",
	"**", "",
	"__", "",
	"*", "",
	"_", "",
	"#", "",
	"-", "",
)

// CleanText strips markdown and directive markup that synthesizers would
// otherwise read aloud.
func CleanText(text string) string {
	return strings.TrimSpace(markupReplacer.Replace(text))
}

// ShouldSpeak filters replies that only echo the assistant's own prompts.
func ShouldSpeak(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.Contains(t, "Listening...") {
		return false
	}
	return !strings.HasPrefix(t, "How can I assist you")
}
