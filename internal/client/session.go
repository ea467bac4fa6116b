package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"todohive/internal/model"

	_ "modernc.org/sqlite"
)

// 会话存储使用的固定键。
const (
	keyToken        = "token"
	keyUser         = "user"
	keyPendingEmail = "pendingVerificationEmail"
)

// SessionStore 在本地 SQLite 文件中保存登录会话。
//
// 待验证邮箱在注册时写入，登录成功、验证成功或登出时清除。
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore 打开（必要时创建）会话数据库。
func OpenSessionStore(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS session (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init session db: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// DefaultSessionPath 返回当前用户默认的会话文件位置。
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "todohive", "session.db"), nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, nil
}

func (s *SessionStore) set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set session[%s]: %w", key, err)
	}
	return nil
}

func (s *SessionStore) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete session[%s]: %w", key, err)
	}
	return nil
}

// Token 返回保存的访问令牌，未登录时为空串。
func (s *SessionStore) Token(ctx context.Context) (string, error) {
	v, err := s.get(ctx, keyToken)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *SessionStore) SetToken(ctx context.Context, token string) error {
	return s.set(ctx, keyToken, []byte(token))
}

// User 返回保存的用户信息，未登录时为 nil。
func (s *SessionStore) User(ctx context.Context) (*model.PublicUser, error) {
	v, err := s.get(ctx, keyUser)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	var user model.PublicUser
	if err := json.Unmarshal(v, &user); err != nil {
		return nil, fmt.Errorf("failed to decode session user: %w", err)
	}
	return &user, nil
}

func (s *SessionStore) SetUser(ctx context.Context, user model.PublicUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session user: %w", err)
	}
	return s.set(ctx, keyUser, raw)
}

// PendingEmail 返回注册后等待验证的邮箱，没有时为空串。
func (s *SessionStore) PendingEmail(ctx context.Context) (string, error) {
	v, err := s.get(ctx, keyPendingEmail)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *SessionStore) SetPendingEmail(ctx context.Context, email string) error {
	return s.set(ctx, keyPendingEmail, []byte(email))
}

func (s *SessionStore) ClearPendingEmail(ctx context.Context) error {
	return s.delete(ctx, keyPendingEmail)
}

// ClearAuth 清除登录态（401 兜底路径）。
func (s *SessionStore) ClearAuth(ctx context.Context) error {
	return s.deleteKeys(ctx, keyToken, keyUser)
}

// Clear 清空会话，包括待验证邮箱（登出路径）。
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.deleteKeys(ctx, keyToken, keyUser, keyPendingEmail)
}

// deleteKeys 在一个事务里删除多个键，不留中间状态。
func (s *SessionStore) deleteKeys(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session tx: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete session[%s]: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session tx: %w", err)
	}
	return nil
}
