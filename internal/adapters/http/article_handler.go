package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// ArticleHandler handles article requests
type ArticleHandler struct {
	articleService *services.ArticleService
	logger         *logger.Logger
}

// NewArticleHandler creates a new article handler
func NewArticleHandler(articleService *services.ArticleService, logger *logger.Logger) *ArticleHandler {
	return &ArticleHandler{
		articleService: articleService,
		logger:         logger.WithComponent("article_handler"),
	}
}

// ListArticles godoc
// @Summary List articles, newest first
// @Tags articles
// @Produce json
// @Param q query string false "Case-insensitive search on title and content"
// @Param page query int false "Page number, from 1"
// @Param page_size query int false "Items per page"
// @Success 200 {object} ports.ArticlePage
// @Security BearerAuth
// @Router /articles [get]
func (h *ArticleHandler) ListArticles(c echo.Context) error {
	page, err := positiveParam(c, "page")
	if err != nil {
		return err
	}
	size, err := positiveParam(c, "page_size")
	if err != nil {
		return err
	}

	query := ports.ArticleQuery{Search: c.QueryParam("q"), Page: page, PageSize: size}
	result, err := h.articleService.List(c.Request().Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// positiveParam reads an optional positive integer query parameter; 0 means unset.
func positiveParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, entities.ValidationError(name, "must be a positive integer")
	}
	return n, nil
}

// GetArticle godoc
// @Summary Article with comments
// @Tags articles
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} entities.Article
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /articles/{id} [get]
func (h *ArticleHandler) GetArticle(c echo.Context) error {
	article, err := h.articleService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, article)
}

// CreateArticle godoc
// @Summary Write an article
// @Tags articles
// @Accept json
// @Produce json
// @Param request body ports.ArticleRequest true "Article"
// @Success 201 {object} entities.Article
// @Failure 400 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /articles [post]
func (h *ArticleHandler) CreateArticle(c echo.Context) error {
	var req ports.ArticleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	article, err := h.articleService.Create(c.Request().Context(), req, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, article)
}

// UpdateArticle godoc
// @Summary Edit an article
// @Description Only the author may edit
// @Tags articles
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param request body ports.ArticleRequest true "Article"
// @Success 200 {object} entities.Article
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /articles/{id} [put]
func (h *ArticleHandler) UpdateArticle(c echo.Context) error {
	var req ports.ArticleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	article, err := h.articleService.Update(c.Request().Context(), c.Param("id"), req, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, article)
}

// DeleteArticle godoc
// @Summary Delete an article and its comments
// @Description Only the author may delete
// @Tags articles
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} ports.MessageResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /articles/{id} [delete]
func (h *ArticleHandler) DeleteArticle(c echo.Context) error {
	if err := h.articleService.Delete(c.Request().Context(), c.Param("id"), Caller(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Article deleted"})
}

// LikeArticle godoc
// @Summary Like an article
// @Description Liking twice counts once
// @Tags articles
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} entities.Article
// @Security BearerAuth
// @Router /articles/{id}/like [post]
func (h *ArticleHandler) LikeArticle(c echo.Context) error {
	article, err := h.articleService.Like(c.Request().Context(), c.Param("id"), Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, article)
}

// AddComment godoc
// @Summary Comment on an article
// @Tags articles
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param request body ports.AddCommentRequest true "Comment"
// @Success 201 {object} entities.Comment
// @Failure 400 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /articles/{id}/comments [post]
func (h *ArticleHandler) AddComment(c echo.Context) error {
	var req ports.AddCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	comment, err := h.articleService.AddComment(c.Request().Context(), c.Param("id"), Caller(c), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}
