package service

import (
	"regexp"
	"strings"

	"github.com/sakif/codemind/internal/apperror"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// rules collects every failed check so a client sees all problems at once.
type rules struct {
	failed []string
}

func (r *rules) check(ok bool, message string) {
	if !ok {
		r.failed = append(r.failed, message)
	}
}

func (r *rules) err() error {
	if len(r.failed) == 0 {
		return nil
	}
	return apperror.Invalid(r.failed)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func validEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func runeLen(s string) int {
	return len([]rune(s))
}
