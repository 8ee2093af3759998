package knowledge

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// MaxNotesChars はシステムプロンプトに載せるコーチノートの上限文字数。
	MaxNotesChars = 10000

	// NoNotesPlaceholder はボイスナレッジが未登録の場合のプレースホルダー。
	NoNotesPlaceholder = "No coach notes provided yet."
)

// Retriever はコーチのボイスナレッジを取得するサービス。
type Retriever struct {
	blobRepo repository.BlobRepository
}

// NewRetriever はRetrieverの新しいインスタンスを生成する。
func NewRetriever(blobRepo repository.BlobRepository) *Retriever {
	return &Retriever{blobRepo: blobRepo}
}

// LatestQA は最大バージョンのqaブロブの内容を返す。
// 同一バージョンが複数ある場合は空行で連結する。
// 1件もない場合はプレースホルダーを返し、上限文字数で切り詰める。
func (r *Retriever) LatestQA(ctx context.Context, userID string) (string, error) {
	blobs, err := r.blobRepo.ListQAByMaxVersion(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(blobs) == 0 {
		return NoNotesPlaceholder, nil
	}

	contents := make([]string, 0, len(blobs))
	for _, b := range blobs {
		contents = append(contents, b.Content)
	}

	return Truncate(strings.Join(contents, "\n\n"), MaxNotesChars), nil
}

// LatestUpload は最新のアップロードブロブの内容を返す。存在しない場合は空文字。
func (r *Retriever) LatestUpload(ctx context.Context, userID string) (string, error) {
	blob, err := r.blobRepo.FindLatestUpload(ctx, userID)
	if err != nil {
		return "", err
	}
	if blob == nil {
		return "", nil
	}
	return blob.Content, nil
}

// Truncate は文字列を最大maxバイトで切り詰める。
// マルチバイト文字を途中で分断しないよう、ルーン境界まで戻って切る。
// プロンプト予算の管理は固定長ポリシー。
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
