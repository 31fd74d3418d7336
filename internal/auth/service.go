// Package auth はユーザー登録・ログイン・セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/commentman/internal/model"
	"github.com/hitoshi/commentman/internal/repository"
)

// ErrInvalidCredentials はユーザー名またはパスワードの不一致を表す。
// どちらが誤っているかを呼び出し元に区別させない。
var ErrInvalidCredentials = errors.New("ユーザー名またはパスワードが正しくありません")

// ErrUserNotFound は指定ユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

const (
	// minPasswordLength はパスワードの最小文字数。
	minPasswordLength = 8
	// maxUsernameLength はユーザー名の最大文字数。
	maxUsernameLength = 64
	// sessionTokenBytes はセッショントークンの乱数バイト長。
	sessionTokenBytes = 32
)

// Service は認証のアプリケーションサービス。
type Service struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	sessionMaxAge time.Duration
	logger        *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, sessions repository.SessionRepository, sessionMaxAge time.Duration, logger *slog.Logger) *Service {
	return &Service{
		users:         users,
		sessions:      sessions,
		sessionMaxAge: sessionMaxAge,
		logger:        logger,
	}
}

// Register は新規ユーザーを登録する。
// パスワードはbcryptでハッシュ化して保存する。
// ユーザー名が既に存在する場合はrepository.ErrDuplicateUsernameを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを登録しました", slog.String("user_id", user.ID))

	return user, nil
}

// Login は資格情報を検証し、新しいセッションを発行する。
// 発行されるアクセストークンはサーバー側に保存される不透明な乱数文字列。
// ユーザー不在とパスワード不一致はどちらもErrInvalidCredentialsになる。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("セッショントークンの生成に失敗しました: %w", err)
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID:        token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// ログイン自体は成立しているため警告に留める
		s.logger.Warn("最終ログイン時刻の更新に失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID),
		)
	}

	s.logger.Info("ログインしました", slog.String("user_id", user.ID))

	return user, token, nil
}

// Logout は指定トークンのセッションを破棄する。
// 存在しないトークンでもエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// GetCurrentUser は認証済みユーザーIDからユーザー情報を取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// validateUsername はユーザー名の形式を検証する。
func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("ユーザー名は必須です")
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("ユーザー名は%d文字以内で指定してください", maxUsernameLength)
	}
	return nil
}

// validatePassword はパスワードの形式を検証する。
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("パスワードは%d文字以上で指定してください", minPasswordLength)
	}
	return nil
}

// newSessionToken は暗号論的乱数からセッショントークンを生成する。
func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
