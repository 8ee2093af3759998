// Package license はライセンスキーの発行・検証とユーザー解決を提供する。
package license

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// KeyPrefix はライセンスキーの固定プレフィックス。
	KeyPrefix = "eva-"
	// keyLength はプレフィックスを除いたランダム部の長さ。
	keyLength = 12
	// keyCharset はランダム部に使用する文字集合。
	keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateKey は新しいライセンスキーを生成する。
// 形式: "eva-" + 12文字の英大文字数字。
func GenerateKey() (string, error) {
	var sb strings.Builder
	sb.WriteString(KeyPrefix)
	max := big.NewInt(int64(len(keyCharset)))
	for i := 0; i < keyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate license key: %w", err)
		}
		sb.WriteByte(keyCharset[n.Int64()])
	}
	return sb.String(), nil
}

// ValidFormat はライセンスキーが正しい形式かを検証する。
func ValidFormat(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) {
		return false
	}
	if len(key) != len(KeyPrefix)+keyLength {
		return false
	}
	for _, c := range key[len(KeyPrefix):] {
		if !strings.ContainsRune(keyCharset, c) {
			return false
		}
	}
	return true
}

// Verifier はライセンスキーの有効性検証インターフェース。
// 本実装のほか、外部エンタイトルメントサービスへの照会実装に差し替え可能。
type Verifier interface {
	// Verify はキーが有効かを返す。不正なキーはfalseを返し、エラーにはしない。
	Verify(ctx context.Context, key string) (bool, error)
}

// FormatVerifier は形式検証のみを行うVerifier実装。
// AllowAnyが真の場合は形式を問わず任意の非空キーを受け入れる（開発用）。
type FormatVerifier struct {
	AllowAny bool
}

// Verify はキーが有効かを返す。
func (v *FormatVerifier) Verify(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if v.AllowAny {
		return true, nil
	}
	return ValidFormat(key), nil
}

// Resolver はライセンスキーからユーザーを解決する。
// 初見の有効なキーにはユーザーを自動作成する。
type Resolver struct {
	verifier Verifier
	users    repository.UserRepository
}

// NewResolver はResolverを生成する。
func NewResolver(verifier Verifier, users repository.UserRepository) *Resolver {
	return &Resolver{verifier: verifier, users: users}
}

// Resolve はライセンスキーからユーザーを解決する。
// キーが欠落・無効な場合は (nil, nil) を返す。「ユーザーなし」はエラーではなく、
// 呼び出し側が401に変換する。永続化の失敗のみエラーを返す。
func (r *Resolver) Resolve(ctx context.Context, key string) (*model.User, error) {
	if key == "" {
		return nil, nil
	}

	ok, err := r.verifier.Verify(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to verify license key: %w", err)
	}
	if !ok {
		return nil, nil
	}

	user, err := r.users.FindByLicenseKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by license key: %w", err)
	}
	if user != nil {
		return user, nil
	}

	// 初見のキー: ユーザーを自動作成する
	now := time.Now()
	user = &model.User{
		ID:         uuid.New().String(),
		LicenseKey: key,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.users.Create(ctx, user); err != nil {
		// 同一キーの同時初回アクセスで作成が競合した可能性があるため再検索する
		existing, findErr := r.users.FindByLicenseKey(ctx, key)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created from license key",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// IssueNew は新しいライセンスキーを発行し、紐付くユーザーを作成する。
func (r *Resolver) IssueNew(ctx context.Context) (*model.User, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:         uuid.New().String(),
		LicenseKey: key,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new license issued", slog.String("user_id", user.ID))
	return user, nil
}

// LinkWhop はライセンスキーで解決したユーザーに外部Whopアカウント情報を紐付ける。
func (r *Resolver) LinkWhop(ctx context.Context, key, whopUserID, name, email, avatarURL string) (*model.User, error) {
	user, err := r.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewInvalidLicenseError()
	}

	if err := r.users.UpdateWhopLink(ctx, user.ID, whopUserID, name, email, avatarURL); err != nil {
		return nil, err
	}

	user.WhopUserID = whopUserID
	user.Name = name
	user.Email = email
	user.AvatarURL = avatarURL
	return user, nil
}
