package prompt

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage is used when a text is too short or ambiguous to classify.
var DefaultLanguage = language.Chinese

// DetectLanguage guesses the language of text. Unreliable guesses fall back
// to DefaultLanguage.
func DetectLanguage(text string) language.Tag {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		if info.Script == unicode.Latin {
			return language.English
		}
		return DefaultLanguage
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return DefaultLanguage
	}
	tag, err := language.Parse(code)
	if err != nil {
		return DefaultLanguage
	}
	return tag
}

// LanguageName is the English name of tag, e.g. "Chinese".
func LanguageName(tag language.Tag) string {
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
