package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// DefaultArticlePageSize is the number of articles per page.
const DefaultArticlePageSize = 5

// ArticleService handles article operations
type ArticleService struct {
	articles  ports.ArticleRepository
	validator *Validator
	logger    *logger.Logger
	now       func() time.Time
}

// NewArticleService creates a new article service
func NewArticleService(articles ports.ArticleRepository, validator *Validator, logger *logger.Logger) *ArticleService {
	return &ArticleService{
		articles:  articles,
		validator: validator,
		logger:    logger.WithComponent("article_service"),
		now:       time.Now,
	}
}

func (s *ArticleService) Create(ctx context.Context, req ports.ArticleRequest, author *entities.User) (*entities.Article, error) {
	if author == nil {
		return nil, entities.Unauthenticatedf("sign in to write articles")
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	article := &entities.Article{
		Title:      strings.TrimSpace(req.Title),
		Content:    strings.TrimSpace(req.Content),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName(),
		Tags:       req.Tags,
		CreatedAt:  s.now().UTC(),
	}
	id, err := s.articles.Create(ctx, article)
	if err != nil {
		return nil, fmt.Errorf("failed to create article: %w", err)
	}
	article.ID = id

	s.logger.LogUserAction(author.ID, "article.create", map[string]interface{}{"article_id": id})
	return article, nil
}

// Update edits an article. Only its author may do so.
func (s *ArticleService) Update(ctx context.Context, id string, req ports.ArticleRequest, caller *entities.User) (*entities.Article, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	article, err := s.owned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	updatedAt := s.now().UTC()
	article.Title = strings.TrimSpace(req.Title)
	article.Content = strings.TrimSpace(req.Content)
	article.Tags = req.Tags
	article.UpdatedAt = &updatedAt

	fields := map[string]interface{}{
		"title":     article.Title,
		"content":   article.Content,
		"tags":      article.Tags,
		"updatedAt": updatedAt,
	}
	if err := s.articles.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	return article, nil
}

// Delete removes an article and its comments. Only its author may do so.
func (s *ArticleService) Delete(ctx context.Context, id string, caller *entities.User) error {
	if _, err := s.owned(ctx, id, caller); err != nil {
		return err
	}
	if err := s.articles.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	s.logger.LogUserAction(caller.ID, "article.delete", map[string]interface{}{"article_id": id})
	return nil
}

// Like records the caller's like. Liking twice counts once.
func (s *ArticleService) Like(ctx context.Context, id string, caller *entities.User) (*entities.Article, error) {
	if caller == nil {
		return nil, entities.Unauthenticatedf("sign in to like articles")
	}
	article, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Likes[caller.ID] {
		return article, nil
	}

	likes := make(map[string]bool, len(article.Likes)+1)
	for k, v := range article.Likes {
		likes[k] = v
	}
	likes[caller.ID] = true
	if err := s.articles.Update(ctx, id, map[string]interface{}{"likes": likes}); err != nil {
		return nil, fmt.Errorf("failed to like article: %w", err)
	}
	article.Likes = likes
	return article, nil
}

// AddComment appends a comment signed with the caller's display name.
func (s *ArticleService) AddComment(ctx context.Context, id string, caller *entities.User, text string) (*entities.Comment, error) {
	if caller == nil {
		return nil, entities.Unauthenticatedf("sign in to comment")
	}
	if err := requireText("text", text); err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}

	name := caller.DisplayName()
	if name == "" {
		name = entities.AnonymousAuthor
	}
	comment := &entities.Comment{Name: name, Text: strings.TrimSpace(text), Date: s.now().UTC()}
	key, err := s.articles.AppendComment(ctx, id, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	comment.ID = key
	return comment, nil
}

// Get returns an article with its comments.
func (s *ArticleService) Get(ctx context.Context, id string) (*entities.Article, error) {
	article, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.articles.ListComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	article.Comments = comments
	return article, nil
}

// List returns one page of articles matching the search, newest first.
func (s *ArticleService) List(ctx context.Context, query ports.ArticleQuery) (*ports.ArticlePage, error) {
	all, err := s.articles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	matched := make([]*entities.Article, 0, len(all))
	for _, a := range all {
		if a.Matches(query.Search) {
			matched = append(matched, a)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page, size := query.Page, query.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultArticlePageSize
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return &ports.ArticlePage{
		Items:    matched[start:end],
		Page:     page,
		PageSize: size,
		Total:    len(matched),
		HasNext:  end < len(matched),
	}, nil
}

func (s *ArticleService) validateRequest(req ports.ArticleRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if err := requireText("title", req.Title); err != nil {
		return err
	}
	return requireText("content", req.Content)
}

func (s *ArticleService) get(ctx context.Context, id string) (*entities.Article, error) {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

func (s *ArticleService) owned(ctx context.Context, id string, caller *entities.User) (*entities.Article, error) {
	if caller == nil {
		return nil, entities.Unauthenticatedf("sign in to manage articles")
	}
	article, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.AuthorID != caller.ID {
		return nil, entities.Permissionf("only the author can change article %s", id)
	}
	return article, nil
}
