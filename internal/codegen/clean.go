package codegen

import (
	"regexp"
	"strings"
)

var (
	openingFence  = regexp.MustCompile("```\\w*\\n")
	trailingFence = regexp.MustCompile("```\\s*$")
)

// CleanCode strips Markdown code fences from model output. Every opening
// fence (with or without a language tag) is removed, as is a closing fence
// at the very end; the result is trimmed.
func CleanCode(raw string) string {
	s := openingFence.ReplaceAllString(raw, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
