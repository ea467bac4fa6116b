package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"todohive/internal/api/middleware"
	"todohive/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TodoStore interface {
	ListTodos(ctx context.Context, userID uint) ([]model.Todo, error)
	GetTodo(ctx context.Context, id uint) (*model.Todo, error)
	CreateTodo(ctx context.Context, todo *model.Todo) error
	SaveTodo(ctx context.Context, todo *model.Todo) error
	DeleteTodo(ctx context.Context, todo *model.Todo) error
	SearchTodos(ctx context.Context, userID uint, query string) ([]model.Todo, error)
	CountTodos(ctx context.Context, userID uint) (total int64, completed int64, err error)
}

type dbTodoStore struct {
	db *gorm.DB
}

func (s dbTodoStore) ListTodos(ctx context.Context, userID uint) ([]model.Todo, error) {
	todos := []model.Todo{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

func (s dbTodoStore) GetTodo(ctx context.Context, id uint) (*model.Todo, error) {
	var todo model.Todo
	if err := s.db.WithContext(ctx).First(&todo, id).Error; err != nil {
		return nil, err
	}
	return &todo, nil
}

func (s dbTodoStore) CreateTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Create(todo).Error
}

func (s dbTodoStore) SaveTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Save(todo).Error
}

func (s dbTodoStore) DeleteTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Delete(todo).Error
}

func (s dbTodoStore) SearchTodos(ctx context.Context, userID uint, query string) ([]model.Todo, error) {
	todos := []model.Todo{}
	pattern := "%" + query + "%"
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND (title LIKE ? OR description LIKE ?)", userID, pattern, pattern).
		Order("id").
		Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

func (s dbTodoStore) CountTodos(ctx context.Context, userID uint) (int64, int64, error) {
	var total, completed int64
	if err := s.db.WithContext(ctx).Model(&model.Todo{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Todo{}).Where("user_id = ? AND completed = ?", userID, true).Count(&completed).Error; err != nil {
		return 0, 0, err
	}
	return total, completed, nil
}

// createTodoRequest 创建待办的请求参数。
type createTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateTodoRequest 局部更新请求，nil 字段保持不变。
type updateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// handleListTodos 返回当前用户的全部待办。
func (s *Server) handleListTodos(c *gin.Context) {
	userID := middleware.GetUserID(c)
	todos, err := s.todos.ListTodos(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": todos})
}

// handleCreateTodo 创建一条待办，归属当前用户。
func (s *Server) handleCreateTodo(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing title"})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing title"})
		return
	}

	todo := model.Todo{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.todos.CreateTodo(c.Request.Context(), &todo); err != nil {
		s.logger.Error("create todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create todo failed"})
		return
	}
	c.JSON(http.StatusCreated, todo)
}

// handleUpdateTodo 局部更新一条待办。
//
// 先按 ID 查记录再比对归属：不存在返回 404，归属他人返回 403，
// 两种情况要区分开。
func (s *Server) handleUpdateTodo(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Title == nil && req.Description == nil && req.Completed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	todo, err := s.todos.GetTodo(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
			return
		}
		s.logger.Error("load todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load todo failed"})
		return
	}
	if todo.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized access"})
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing title"})
			return
		}
		todo.Title = title
	}
	if req.Description != nil {
		todo.Description = strings.TrimSpace(*req.Description)
	}
	if req.Completed != nil {
		todo.Completed = *req.Completed
	}

	if err := s.todos.SaveTodo(c.Request.Context(), todo); err != nil {
		s.logger.Error("update todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update todo failed"})
		return
	}
	c.JSON(http.StatusOK, todo)
}

// handleDeleteTodo 删除一条待办，归属检查同更新。
func (s *Server) handleDeleteTodo(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	todo, err := s.todos.GetTodo(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
			return
		}
		s.logger.Error("load todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load todo failed"})
		return
	}
	if todo.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized access"})
		return
	}

	if err := s.todos.DeleteTodo(c.Request.Context(), todo); err != nil {
		s.logger.Error("delete todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete todo failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSearchTodos 在当前用户的待办中按标题和描述做模糊匹配。
func (s *Server) handleSearchTodos(c *gin.Context) {
	userID := middleware.GetUserID(c)
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}

	todos, err := s.todos.SearchTodos(c.Request.Context(), userID, query)
	if err != nil {
		s.logger.Error("search todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search todos failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": todos})
}

// handleTodoStats 返回当前用户的待办完成统计。
func (s *Server) handleTodoStats(c *gin.Context) {
	userID := middleware.GetUserID(c)
	total, completed, err := s.todos.CountTodos(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("count todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count todos failed"})
		return
	}

	var rate float64
	if total > 0 {
		rate = math.Round(float64(completed) / float64(total) * 100)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":          total,
		"completed":      completed,
		"pending":        total - completed,
		"completionRate": rate,
	})
}
