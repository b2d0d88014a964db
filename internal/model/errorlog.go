package model

import "time"

// Error categories an ErrorLog can carry. The fix endpoint always records
// runtime errors; the others exist for clients that classify errors
// themselves.
const (
	ErrorTypeSyntax      = "syntax"
	ErrorTypeRuntime     = "runtime"
	ErrorTypeCompilation = "compilation"
	ErrorTypeNetwork     = "network"
	ErrorTypeOther       = "other"
)

var ErrorTypes = []string{ErrorTypeSyntax, ErrorTypeRuntime, ErrorTypeCompilation, ErrorTypeNetwork, ErrorTypeOther}

// MaxSnippetLength bounds ErrorLog.CodeSnippet, counted in characters.
const MaxSnippetLength = 500

// ErrorLog records one attempt to repair broken code. Records are append-only;
// Resolved is the only field that changes after creation.
type ErrorLog struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	HistoryID     string    `json:"codeHistoryId,omitempty"`
	ErrorType     string    `json:"errorType"`
	ErrorMessage  string    `json:"errorMessage"`
	CodeSnippet   string    `json:"codeSnippet"`
	Language      string    `json:"language"`
	FixAttempted  bool      `json:"fixAttempted"`
	FixSuccessful bool      `json:"fixSuccessful"`
	AIResponse    string    `json:"aiResponse,omitempty"`
	Resolved      bool      `json:"resolved"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Snippet returns at most MaxSnippetLength characters of code.
func Snippet(code string) string {
	r := []rune(code)
	if len(r) <= MaxSnippetLength {
		return code
	}
	return string(r[:MaxSnippetLength])
}
