package model

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Languages the generator accepts. History records additionally accept "css"
// because users can save hand-written stylesheets.
var (
	GenerationLanguages = []string{"html", "javascript", "react", "nodejs", "python", "c", "java", "typescript"}
	HistoryLanguages    = append(slices.Clone(GenerationLanguages), "css")
	Frameworks          = []string{"none", "react", "express", "django", "flask", "spring", "nextjs"}
	Stylings            = []string{"css", "tailwind", "bootstrap", "none"}
)

const (
	DefaultFramework  = "none"
	DefaultStyling    = "css"
	DefaultAIProvider = "gemini"

	MaxTitleLength  = 200
	MaxPromptLength = 2000
)

// FixAttempt is one entry in a record's fix trail, appended whenever the
// record's code is repaired through the fix endpoint.
type FixAttempt struct {
	Error     string    `json:"error"`
	FixedCode string    `json:"fixedCode"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a stored generation: the prompt, what the model produced, and
// what the user later changed. UserID is the owner and never changes after
// creation.
type History struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	Title          string       `json:"title"`
	Language       string       `json:"language"`
	Framework      string       `json:"framework"`
	Styling        string       `json:"styling"`
	Prompt         string       `json:"prompt"`
	EnhancedPrompt string       `json:"enhancedPrompt,omitempty"`
	GeneratedCode  string       `json:"generatedCode"`
	EditedCode     string       `json:"editedCode,omitempty"`
	AIProvider     string       `json:"aiProvider"`
	IsFavorite     bool         `json:"isFavorite"`
	Tags           []string     `json:"tags"`
	FixAttempts    []FixAttempt `json:"errorLogs"`
	ViewCount      int          `json:"viewCount"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// CurrentCode is the edited code when present, otherwise the generated code.
func (h *History) CurrentCode() string {
	if h.EditedCode != "" {
		return h.EditedCode
	}
	return h.GeneratedCode
}

// MarshalJSON adds the derived currentCode field.
func (h History) MarshalJSON() ([]byte, error) {
	type plain History
	return json.Marshal(struct {
		plain
		CurrentCode string `json:"currentCode"`
	}{plain(h), h.CurrentCode()})
}

// HistorySummary is a History without its large text fields, used by list
// responses.
type HistorySummary struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	Language   string    `json:"language"`
	Framework  string    `json:"framework"`
	Styling    string    `json:"styling"`
	Prompt     string    `json:"prompt"`
	AIProvider string    `json:"aiProvider"`
	IsFavorite bool      `json:"isFavorite"`
	Tags       []string  `json:"tags"`
	ViewCount  int       `json:"viewCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (h *History) Summary() HistorySummary {
	return HistorySummary{
		ID:         h.ID,
		UserID:     h.UserID,
		Title:      h.Title,
		Language:   h.Language,
		Framework:  h.Framework,
		Styling:    h.Styling,
		Prompt:     h.Prompt,
		AIProvider: h.AIProvider,
		IsFavorite: h.IsFavorite,
		Tags:       slices.Clone(h.Tags),
		ViewCount:  h.ViewCount,
		CreatedAt:  h.CreatedAt,
		UpdatedAt:  h.UpdatedAt,
	}
}

// Clone returns a deep copy so callers can mutate the result freely.
func (h *History) Clone() *History {
	c := *h
	c.Tags = slices.Clone(h.Tags)
	c.FixAttempts = slices.Clone(h.FixAttempts)
	return &c
}

// LanguageCount is one bucket of HistoryStats.ByLanguage.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

type HistoryStats struct {
	Total          int             `json:"total"`
	Favorites      int             `json:"favorites"`
	RecentActivity int             `json:"recentActivity"`
	ByLanguage     []LanguageCount `json:"byLanguage"`
}

// SortLanguageCounts orders buckets by count descending, then language.
func SortLanguageCounts(counts []LanguageCount) {
	slices.SortFunc(counts, func(a, b LanguageCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Language, b.Language)
	})
}

// NormalizeTags trims every tag, drops empties and removes duplicates while
// keeping first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// OneOf reports whether v is in allowed.
func OneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, v)
}
