package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/codegen"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

// Generator is the AI side of CodeService. *codegen.Gateway implements it.
type Generator interface {
	Generate(ctx context.Context, req codegen.GenerateRequest) (*codegen.Result, error)
	Fix(ctx context.Context, code, errorMessage, language string) (*codegen.Result, error)
	Explain(ctx context.Context, code, language string) (*codegen.Result, error)
	Optimize(ctx context.Context, code, language string) (*codegen.Result, error)
	Convert(ctx context.Context, code, from, to string) (*codegen.Result, error)
	Provider() string
}

// CodeService runs the AI operations and records their side effects: a
// history record for every generation and an error log for every fix
// attempt.
type CodeService struct {
	gen       Generator
	histories repository.HistoryRepository
	errorLogs repository.ErrorLogRepository
	logger    *slog.Logger
}

func NewCodeService(
	gen Generator,
	histories repository.HistoryRepository,
	errorLogs repository.ErrorLogRepository,
	logger *slog.Logger,
) *CodeService {
	return &CodeService{
		gen:       gen,
		histories: histories,
		errorLogs: errorLogs,
		logger:    logger,
	}
}

const minPromptLength = 5

type GenerateInput struct {
	Prompt    string `json:"prompt"`
	Language  string `json:"language"`
	Framework string `json:"framework"`
	Styling   string `json:"styling"`
	Title     string `json:"title"`
}

type GenerateOutput struct {
	Code      string
	HistoryID string
	Warning   string
}

type FixInput struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Language  string `json:"language"`
	HistoryID string `json:"historyId"`
}

type FixOutput struct {
	Code       string
	ErrorLogID string
	Warning    string
}

type CodeInput struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type ConvertInput struct {
	Code         string `json:"code"`
	FromLanguage string `json:"fromLanguage"`
	ToLanguage   string `json:"toLanguage"`
}

// TextOutput is the result of explain, optimize and convert.
type TextOutput struct {
	Text    string
	Warning string
}

// Generate asks the model for code and saves the result to the caller's
// history. Demo output is saved too, so the user can still edit it.
func (s *CodeService) Generate(ctx context.Context, userID string, in GenerateInput) (*GenerateOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	language := strings.ToLower(strings.TrimSpace(in.Language))
	framework := orDefault(in.Framework, model.DefaultFramework)
	styling := orDefault(in.Styling, model.DefaultStyling)

	var r rules
	r.check(runeLen(prompt) >= minPromptLength, "Prompt must be at least 5 characters long")
	r.check(runeLen(prompt) <= model.MaxPromptLength, "Prompt cannot exceed 2000 characters")
	r.check(language != "", "Programming language is required")
	r.check(language == "" || model.OneOf(language, model.GenerationLanguages),
		"Language must be one of: "+strings.Join(model.GenerationLanguages, ", "))
	r.check(model.OneOf(framework, model.Frameworks),
		"Framework must be one of: "+strings.Join(model.Frameworks, ", "))
	r.check(model.OneOf(styling, model.Stylings),
		"Styling must be one of: "+strings.Join(model.Stylings, ", "))
	if err := r.err(); err != nil {
		return nil, err
	}

	res, err := s.gen.Generate(ctx, codegen.GenerateRequest{
		Prompt:    prompt,
		Language:  language,
		Framework: framework,
		Styling:   styling,
	})
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fmt.Sprintf("%s - %s...", language, truncateRunes(prompt, 50))
	}
	rec := &model.History{
		UserID:         userID,
		Title:          truncateRunes(title, model.MaxTitleLength),
		Language:       language,
		Framework:      framework,
		Styling:        styling,
		Prompt:         prompt,
		EnhancedPrompt: res.EnhancedPrompt,
		GeneratedCode:  res.Text,
		AIProvider:     s.gen.Provider(),
	}
	if err := s.histories.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("service/code: saving generation: %w", err)
	}

	return &GenerateOutput{Code: res.Text, HistoryID: rec.ID, Warning: res.Warning}, nil
}

// Fix asks the model to repair code and logs the attempt whatever the
// outcome. Demo output counts as an unsuccessful fix. When HistoryID names
// one of the caller's records, the fix is appended to it and becomes its
// edited code; other ids are ignored.
func (s *CodeService) Fix(ctx context.Context, userID string, in FixInput) (*FixOutput, error) {
	language := strings.ToLower(strings.TrimSpace(in.Language))

	var r rules
	r.check(!blank(in.Code), "Code is required")
	r.check(!blank(in.Error), "Error message is required")
	r.check(language != "", "Programming language is required")
	if err := r.err(); err != nil {
		return nil, err
	}

	entry := &model.ErrorLog{
		UserID:       userID,
		ErrorType:    model.ErrorTypeRuntime,
		ErrorMessage: in.Error,
		CodeSnippet:  model.Snippet(in.Code),
		Language:     language,
		FixAttempted: true,
	}

	res, err := s.gen.Fix(ctx, in.Code, in.Error, language)
	if err != nil {
		s.recordFix(ctx, entry)
		return nil, err
	}

	entry.FixSuccessful = !res.Fallback
	entry.AIResponse = res.Text

	if in.HistoryID != "" {
		fix := model.FixAttempt{Error: in.Error, FixedCode: res.Text}
		err := s.histories.AppendFix(ctx, userID, in.HistoryID, fix)
		switch {
		case err == nil:
			entry.HistoryID = in.HistoryID
		case errors.Is(err, apperror.ErrNotFound):
			s.logger.Debug("fix names unknown history record",
				slog.String("userID", userID),
				slog.String("historyID", in.HistoryID),
			)
		default:
			entry.FixSuccessful = false
			s.recordFix(ctx, entry)
			return nil, fmt.Errorf("service/code: appending fix to %s: %w", in.HistoryID, err)
		}
	}

	s.recordFix(ctx, entry)
	return &FixOutput{Code: res.Text, ErrorLogID: entry.ID, Warning: res.Warning}, nil
}

// recordFix stores the error log. Store failures are logged, never returned.
func (s *CodeService) recordFix(ctx context.Context, entry *model.ErrorLog) {
	if err := s.errorLogs.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record fix attempt",
			slog.String("userID", entry.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CodeService) Explain(ctx context.Context, in CodeInput) (*TextOutput, error) {
	if blank(in.Code) || blank(in.Language) {
		return nil, apperror.ValidationFailed("code", "Code and language are required")
	}
	res, err := s.gen.Explain(ctx, in.Code, strings.ToLower(strings.TrimSpace(in.Language)))
	if err != nil {
		return nil, err
	}
	return &TextOutput{Text: res.Text, Warning: res.Warning}, nil
}

func (s *CodeService) Optimize(ctx context.Context, in CodeInput) (*TextOutput, error) {
	if blank(in.Code) || blank(in.Language) {
		return nil, apperror.ValidationFailed("code", "Code and language are required")
	}
	res, err := s.gen.Optimize(ctx, in.Code, strings.ToLower(strings.TrimSpace(in.Language)))
	if err != nil {
		return nil, err
	}
	return &TextOutput{Text: res.Text, Warning: res.Warning}, nil
}

func (s *CodeService) Convert(ctx context.Context, in ConvertInput) (*TextOutput, error) {
	if blank(in.Code) || blank(in.FromLanguage) || blank(in.ToLanguage) {
		return nil, apperror.ValidationFailed("code", "Code, fromLanguage, and toLanguage are required")
	}
	res, err := s.gen.Convert(ctx, in.Code,
		strings.ToLower(strings.TrimSpace(in.FromLanguage)),
		strings.ToLower(strings.TrimSpace(in.ToLanguage)),
	)
	if err != nil {
		return nil, err
	}
	return &TextOutput{Text: res.Text, Warning: res.Warning}, nil
}

func (s *CodeService) ErrorLogs(ctx context.Context, userID string, limit int) ([]model.ErrorLog, error) {
	logs, err := s.errorLogs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service/code: listing error logs for %s: %w", userID, err)
	}
	return logs, nil
}

func (s *CodeService) ResolveError(ctx context.Context, userID, id string) (*model.ErrorLog, error) {
	return s.errorLogs.MarkResolved(ctx, userID, id)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
