package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

// RecentWindow is how far back Stats counts recent activity.
const RecentWindow = 7 * 24 * time.Hour

// HistoryService is the owner-scoped CRUD layer over saved generations.
// Every method takes the caller's user ID; the repository reports records
// owned by someone else as not found.
type HistoryService struct {
	histories repository.HistoryRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewHistoryService(histories repository.HistoryRepository, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		histories: histories,
		logger:    logger,
		now:       time.Now,
	}
}

// ListParams come straight from the query string. Page is 1-based.
type ListParams struct {
	Language      string
	FavoritesOnly bool
	Search        string
	Sort          string
	Page          int
	Limit         int
}

type HistoryPage struct {
	Items []model.HistorySummary
	Total int
	Page  int
	Pages int
}

type CreateHistoryInput struct {
	Title          string   `json:"title"`
	Language       string   `json:"language"`
	Framework      string   `json:"framework"`
	Styling        string   `json:"styling"`
	Prompt         string   `json:"prompt"`
	EnhancedPrompt string   `json:"enhancedPrompt"`
	GeneratedCode  string   `json:"generatedCode"`
	Tags           []string `json:"tags"`
}

// UpdateHistoryInput leaves nil fields unchanged.
type UpdateHistoryInput struct {
	Title      *string  `json:"title"`
	EditedCode *string  `json:"editedCode"`
	IsFavorite *bool    `json:"isFavorite"`
	Tags       []string `json:"tags"`
}

func (s *HistoryService) List(ctx context.Context, userID string, p ListParams) (*HistoryPage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	limit = min(limit, repository.MaxPageSize)
	page := max(p.Page, 1)
	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}

	items, total, err := s.histories.List(ctx, userID, repository.HistoryFilter{
		Language:      p.Language,
		FavoritesOnly: p.FavoritesOnly,
		Search:        p.Search,
		Sort:          p.Sort,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service/history: listing for %s: %w", userID, err)
	}

	return &HistoryPage{
		Items: items,
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func (s *HistoryService) Create(ctx context.Context, userID string, in CreateHistoryInput) (*model.History, error) {
	rec := &model.History{
		UserID:         userID,
		Title:          strings.TrimSpace(in.Title),
		Language:       strings.ToLower(strings.TrimSpace(in.Language)),
		Framework:      orDefault(in.Framework, model.DefaultFramework),
		Styling:        orDefault(in.Styling, model.DefaultStyling),
		Prompt:         in.Prompt,
		EnhancedPrompt: in.EnhancedPrompt,
		GeneratedCode:  in.GeneratedCode,
		AIProvider:     model.DefaultAIProvider,
		Tags:           in.Tags,
	}
	if err := validateHistory(rec); err != nil {
		return nil, err
	}

	if err := s.histories.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("service/history: creating record: %w", err)
	}
	return rec, nil
}

func validateHistory(h *model.History) error {
	var r rules
	r.check(h.Title != "", "Title is required")
	r.check(runeLen(h.Title) <= model.MaxTitleLength, "Title cannot exceed 200 characters")
	r.check(model.OneOf(h.Language, model.HistoryLanguages),
		"Language must be one of: "+strings.Join(model.HistoryLanguages, ", "))
	r.check(model.OneOf(h.Framework, model.Frameworks),
		"Framework must be one of: "+strings.Join(model.Frameworks, ", "))
	r.check(model.OneOf(h.Styling, model.Stylings),
		"Styling must be one of: "+strings.Join(model.Stylings, ", "))
	r.check(!blank(h.Prompt), "Prompt is required")
	r.check(runeLen(h.Prompt) <= model.MaxPromptLength, "Prompt cannot exceed 2000 characters")
	r.check(!blank(h.GeneratedCode), "Generated code is required")
	return r.err()
}

// Get counts a view and returns the record as it is after the increment.
func (s *HistoryService) Get(ctx context.Context, userID, id string) (*model.History, error) {
	if _, err := s.histories.IncrementViewCount(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.histories.GetByID(ctx, userID, id)
}

func (s *HistoryService) Update(ctx context.Context, userID, id string, in UpdateHistoryInput) (*model.History, error) {
	upd := repository.HistoryUpdate{
		EditedCode: in.EditedCode,
		IsFavorite: in.IsFavorite,
		Tags:       in.Tags,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		var r rules
		r.check(title != "", "Title is required")
		r.check(runeLen(title) <= model.MaxTitleLength, "Title cannot exceed 200 characters")
		if err := r.err(); err != nil {
			return nil, err
		}
		upd.Title = &title
	}
	return s.histories.Update(ctx, userID, id, upd)
}

func (s *HistoryService) Delete(ctx context.Context, userID, id string) error {
	if err := s.histories.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("history deleted", slog.String("userID", userID), slog.String("historyID", id))
	return nil
}

func (s *HistoryService) ToggleFavorite(ctx context.Context, userID, id string) (bool, error) {
	return s.histories.ToggleFavorite(ctx, userID, id)
}

func (s *HistoryService) Stats(ctx context.Context, userID string) (*model.HistoryStats, error) {
	stats, err := s.histories.Stats(ctx, userID, s.now().Add(-RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("service/history: stats for %s: %w", userID, err)
	}
	return stats, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
