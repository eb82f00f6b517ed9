package repository

import (
	"context"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/ports"
)

type articleDocument struct {
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	AuthorID   string          `json:"authorId"`
	AuthorName string          `json:"authorName"`
	Tags       []string        `json:"tags,omitempty"`
	Likes      map[string]bool `json:"likes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
}

func (d articleDocument) toArticle(id string) *entities.Article {
	return &entities.Article{
		ID:         id,
		Title:      d.Title,
		Content:    d.Content,
		AuthorID:   d.AuthorID,
		AuthorName: d.AuthorName,
		Tags:       d.Tags,
		Likes:      d.Likes,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// ArticleRepositoryImpl implements the ArticleRepository interface
type ArticleRepositoryImpl struct {
	store ports.DocumentStore
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(store ports.DocumentStore) ports.ArticleRepository {
	return &ArticleRepositoryImpl{store: store}
}

func (r *ArticleRepositoryImpl) Create(ctx context.Context, article *entities.Article) (string, error) {
	doc := articleDocument{
		Title:      article.Title,
		Content:    article.Content,
		AuthorID:   article.AuthorID,
		AuthorName: article.AuthorName,
		Tags:       article.Tags,
		Likes:      article.Likes,
		CreatedAt:  article.CreatedAt.UTC(),
	}
	id, err := r.store.Push(ctx, ArticlesPath, doc)
	if err != nil {
		return "", storeErr("create", ArticlesPath, err)
	}
	return id, nil
}

func (r *ArticleRepositoryImpl) GetByID(ctx context.Context, id string) (*entities.Article, error) {
	if id == "" {
		return nil, entities.ValidationError("id", "is required")
	}
	path := JoinPath(ArticlesPath, id)
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, storeErr("get", path, err)
	}

	var stored articleDocument
	if err := doc.Decode(&stored); err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	return stored.toArticle(id), nil
}

func (r *ArticleRepositoryImpl) List(ctx context.Context) ([]*entities.Article, error) {
	docs, err := r.store.List(ctx, ArticlesPath)
	if err != nil {
		return nil, storeErr("list", ArticlesPath, err)
	}

	articles := make([]*entities.Article, 0, len(docs))
	for i := range docs {
		var stored articleDocument
		if err := docs[i].Decode(&stored); err != nil {
			return nil, entities.StoreError("decode "+docs[i].Path, err)
		}
		articles = append(articles, stored.toArticle(docs[i].Key))
	}
	return articles, nil
}

func (r *ArticleRepositoryImpl) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	path := JoinPath(ArticlesPath, id)
	if err := r.store.Update(ctx, path, fields); err != nil {
		return storeErr("update", path, err)
	}
	return nil
}

func (r *ArticleRepositoryImpl) Delete(ctx context.Context, id string) error {
	path := JoinPath(ArticlesPath, id)
	if err := r.store.Delete(ctx, path); err != nil {
		return storeErr("delete", path, err)
	}
	return nil
}

func (r *ArticleRepositoryImpl) AppendComment(ctx context.Context, articleID string, comment *entities.Comment) (string, error) {
	path := commentsPath(ArticlesPath, articleID)
	key, err := r.store.Push(ctx, path, commentDocument(comment))
	if err != nil {
		return "", storeErr("append", path, err)
	}
	return key, nil
}

func (r *ArticleRepositoryImpl) ListComments(ctx context.Context, articleID string) ([]entities.Comment, error) {
	path := commentsPath(ArticlesPath, articleID)
	docs, err := r.store.List(ctx, path)
	if err != nil {
		return nil, storeErr("list", path, err)
	}
	comments, err := decodeComments(docs)
	if err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	return comments, nil
}
