package probe

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns a human-readable name for the stream's language tag,
// falling back to the raw tag when it cannot be resolved.
func (s AudioStream) LanguageName() string {
	code := strings.TrimSpace(s.Language)
	if code == "" || code == "und" {
		return "unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// Describe summarizes the stream for log output, e.g. "#1 ac3 6ch English".
func (s AudioStream) Describe() string {
	return fmt.Sprintf("#%d %s %dch %s", s.Index, s.Codec, s.Channels, s.LanguageName())
}
