package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, training, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidIndex       = "INVALID_QUESTION_INDEX"
	ErrCodeEmptyFile          = "EMPTY_FILE"
	ErrCodeNoUploadFound      = "NO_UPLOAD_FOUND"
	ErrCodeProjectNotFound    = "PROJECT_NOT_FOUND"
	ErrCodeTranscriptNotFound = "TRANSCRIPT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidLicense     = "INVALID_LICENSE"
	ErrCodeProviderFailed     = "PROVIDER_FAILED"
	ErrCodeProviderTimeout    = "PROVIDER_TIMEOUT"
	ErrCodeProviderParse      = "PROVIDER_PARSE_FAILED"
	ErrCodeInvalidAction      = "INVALID_ACTION"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "A valid license key is required.",
		Category: "auth",
		Action:   "Provide your license key in the X-License-Key header.",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewInvalidIndexError は質問インデックスが範囲外の場合のエラーを生成する。
func NewInvalidIndexError(index int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIndex,
		Message:  fmt.Sprintf("Question index out of range: %d", index),
		Category: "validation",
		Action:   fmt.Sprintf("Use a question index between 1 and %d.", QuestionCount),
	}
}

// NewEmptyFileError は空ファイルが投稿された場合のエラーを生成する。
func NewEmptyFileError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyFile,
		Message:  "The uploaded file is empty.",
		Category: "validation",
		Action:   "Upload a file that contains transcript text.",
	}
}

// NewNoUploadFoundError は再利用可能なアップロードが存在しない場合のエラーを生成する。
func NewNoUploadFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNoUploadFound,
		Message:  "No previous transcript upload found.",
		Category: "training",
		Action:   "Upload a transcript file first, or attach a file to this request.",
	}
}

// NewProjectNotFoundError は案件が存在しないか呼び出し元の所有でない場合のエラーを生成する。
// 「他人のもの」と「存在しない」は意図的に区別しない。
func NewProjectNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  "Project not found.",
		Category: "validation",
		Action:   "Check the project ID.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Check the license key.",
	}
}

// NewInvalidLicenseError はライセンスキーが不正な場合のエラーを生成する。
func NewInvalidLicenseError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLicense,
		Message:  "The license key is invalid.",
		Category: "auth",
		Action:   "Check the license key and try again.",
	}
}

// NewProviderFailedError はLLMプロバイダ呼び出しが失敗した場合のエラーを生成する。
func NewProviderFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  fmt.Sprintf("The AI provider call failed: %s", reason),
		Category: "provider",
		Action:   "Wait a moment and try again.",
	}
}

// NewProviderTimeoutError はLLMプロバイダ呼び出しがタイムアウトした場合のエラーを生成する。
func NewProviderTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderTimeout,
		Message:  "The AI provider did not respond in time.",
		Category: "provider",
		Action:   "Wait a moment and try again.",
	}
}

// NewProviderParseError はプロバイダ応答が期待したJSONでなかった場合のエラーを生成する。
// プロバイダ失敗のサブクラスとして同じフォールバックポリシーで扱う。
func NewProviderParseError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderParse,
		Message:  "The AI provider returned an unexpected response format.",
		Category: "provider",
		Action:   "Wait a moment and try again.",
	}
}

// NewInvalidActionError はトレンドAPIのアクションが不明な場合のエラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("Unknown action: %s", action),
		Category: "validation",
		Action:   "Use generate_insight or update_trends.",
	}
}
