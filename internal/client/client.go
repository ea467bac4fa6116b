package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"todohive/internal/model"
)

// APIError 携带服务端返回的状态码与错误文案。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Todo 是服务端待办记录的线格式。
type Todo struct {
	ID          uint      `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      uint      `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
}

// TodoPatch 局部更新参数，nil 字段不发送。
type TodoPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Stats 待办完成统计。
type Stats struct {
	Total          int64   `json:"total"`
	Completed      int64   `json:"completed"`
	Pending        int64   `json:"pending"`
	CompletionRate float64 `json:"completionRate"`
}

// Client 是 todohive API 的 HTTP 客户端。
//
// 登录态保存在 SessionStore 中；收到 401 时自动清除本地会话。
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *SessionStore
	maxRetries int
}

// New 创建 API 客户端。
func New(baseURL string, session *SessionStore) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		session:    session,
		maxRetries: 2,
	}
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// do 发送一次请求并解析响应；out 为 nil 时丢弃成功响应体。
func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempts := 1
	// 只有无副作用的 GET 请求做退避重试
	if method == http.MethodGet {
		attempts = c.maxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}

		err := c.doOnce(ctx, method, path, payload, authed, out)
		if err == nil {
			return nil
		}
		lastErr = err

		// 4xx 重试不会有不同结果
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusBadRequest ||
				apiErr.Status == http.StatusUnauthorized ||
				apiErr.Status == http.StatusForbidden ||
				apiErr.Status == http.StatusNotFound ||
				apiErr.Status == http.StatusConflict ||
				apiErr.Status == http.StatusTooManyRequests {
				return err
			}
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, authed bool, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, err := c.session.Token(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return &APIError{Status: http.StatusUnauthorized, Message: "Not logged in. Please log in first."}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New("Network error. Please check your connection.")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var errResp errorResponse
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &errResp)

	if authed && resp.StatusCode == http.StatusUnauthorized {
		// 会话失效，丢弃本地登录态
		_ = c.session.ClearAuth(ctx)
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: friendlyMessage(resp.StatusCode, authed, &errResp),
	}
}

// errorMappings 把已知的服务端错误串换成给终端用户看的文案。
// 未收录的错误原样透传。
var errorMappings = map[string]string{
	"Network error occurred":   "Unable to connect to the server. Please check your internet connection.",
	"Session expired":          "Your session has expired. Please log in again.",
	"Invalid credentials":      "The email or password you entered is incorrect.",
	"Email already registered": "An account with this email already exists.",
	"Email not verified":       "Please verify your email address before logging in.",
	"Invalid OTP":              "The verification code you entered is incorrect.",
	"OTP has expired":          "The verification code has expired. Please request a new one.",
	"Missing fields":           "Please fill in all required fields.",
	"Todo not found":           "The requested todo item could not be found.",
	"Unauthorized":             "You are not authorized to perform this action.",
}

// friendlyMessage 把服务端错误映射成给终端用户看的文案。
func friendlyMessage(status int, authed bool, errResp *errorResponse) string {
	if authed && status == http.StatusUnauthorized {
		return "Session expired. Please log in again."
	}
	if status == http.StatusTooManyRequests {
		if errResp.RetryAfter > 0 {
			return fmt.Sprintf("Too many requests. Try again in %d seconds.", errResp.RetryAfter)
		}
		return "Too many requests. Please slow down."
	}
	if errResp.Error != "" {
		if mapped, ok := errorMappings[errResp.Error]; ok {
			return mapped
		}
		return errResp.Error
	}
	if status >= 500 {
		return "Server error. Please try again later."
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// RegisterResult 注册接口的响应。
type RegisterResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Email   string `json:"email"`
}

// Register 注册新账号并记录待验证邮箱。
func (c *Client) Register(ctx context.Context, name, email, password string) (*RegisterResult, error) {
	var result RegisterResult
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, false, &result)
	if err != nil {
		return nil, err
	}
	if err := c.session.SetPendingEmail(ctx, result.Email); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify 提交邮箱验证码；成功后清掉待验证邮箱。
func (c *Client) Verify(ctx context.Context, email, otp string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify", map[string]string{
		"email": email,
		"otp":   otp,
	}, false, &resp); err != nil {
		return "", err
	}
	if err := c.session.ClearPendingEmail(ctx); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ResendVerification 请求重发验证码。
func (c *Client) ResendVerification(ctx context.Context, email string) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/resend-verification", map[string]string{
		"email": email,
	}, false, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Login 登录并持久化会话。
func (c *Client) Login(ctx context.Context, email, password string) (*model.PublicUser, error) {
	var resp struct {
		Token string           `json:"token"`
		User  model.PublicUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, false, &resp); err != nil {
		return nil, err
	}
	if err := c.session.SetToken(ctx, resp.Token); err != nil {
		return nil, err
	}
	if err := c.session.SetUser(ctx, resp.User); err != nil {
		return nil, err
	}
	// 能登录说明邮箱已验证，作废的待验证邮箱一并清掉
	if err := c.session.ClearPendingEmail(ctx); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Logout 清空本地会话（含待验证邮箱）；服务端令牌无状态，无需通知。
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Clear(ctx)
}

// Todos 返回当前用户的待办列表。
func (c *Client) Todos(ctx context.Context) ([]Todo, error) {
	var resp struct {
		Data []Todo `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateTodo 新建待办。
func (c *Client) CreateTodo(ctx context.Context, title, description string) (*Todo, error) {
	var todo Todo
	if err := c.do(ctx, http.MethodPost, "/api/todos", map[string]string{
		"title":       title,
		"description": description,
	}, true, &todo); err != nil {
		return nil, err
	}
	return &todo, nil
}

// UpdateTodo 局部更新一条待办。
func (c *Client) UpdateTodo(ctx context.Context, id uint, patch TodoPatch) (*Todo, error) {
	var todo Todo
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/todos/%d", id), patch, true, &todo); err != nil {
		return nil, err
	}
	return &todo, nil
}

// DeleteTodo 删除一条待办。
func (c *Client) DeleteTodo(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/todos/%d", id), nil, true, nil)
}

// SearchTodos 按关键词搜索当前用户的待办。
func (c *Client) SearchTodos(ctx context.Context, query string) ([]Todo, error) {
	var resp struct {
		Data []Todo `json:"data"`
	}
	path := "/api/todos/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// TodoStats 返回完成统计。
func (c *Client) TodoStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/todos/stats", nil, true, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health 检查服务端健康状态。
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, false, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
