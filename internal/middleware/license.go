// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// LicenseKeyHeader はライセンスキーを渡すHTTPヘッダー名。
const LicenseKeyHeader = "X-License-Key"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// UserResolver はライセンスキーからユーザーを解決するインターフェース。
// license.Resolverの部分集合として定義する。
type UserResolver interface {
	Resolve(ctx context.Context, key string) (*model.User, error)
}

// NewLicenseMiddleware はX-License-Keyヘッダーからユーザーを解決するミドルウェアを返す。
// 解決済みユーザーIDをリクエストコンテキストに注入する。
// キーの欠落・無効なリクエストには401 Unauthorizedを返す。
func NewLicenseMiddleware(resolver UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(LicenseKeyHeader)
			if key == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			user, err := resolver.Resolve(r.Context(), key)
			if err != nil {
				slog.Error("failed to resolve license key",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidLicenseError())
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ライセンスミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
