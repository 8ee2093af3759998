package trainer

import (
	"fmt"
	"strings"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

const (
	// SolidThreshold は回答が「十分」と判定される最小文字数（trim後）。
	SolidThreshold = 300
	// ReadyCount はコミット推奨となる十分な回答の最小数。
	ReadyCount = 24
)

// AnswerClass は回答の完成度分類。
type AnswerClass string

const (
	AnswerClassEmpty AnswerClass = "empty"
	AnswerClassShort AnswerClass = "short"
	AnswerClassSolid AnswerClass = "solid"
)

// Classify は回答テキストを完成度で分類する。
// trim後の長さが0ならempty、SolidThreshold未満ならshort、以上ならsolid。
func Classify(text string) AnswerClass {
	n := len(strings.TrimSpace(text))
	switch {
	case n == 0:
		return AnswerClassEmpty
	case n < SolidThreshold:
		return AnswerClassShort
	default:
		return AnswerClassSolid
	}
}

// Score は全30問の集計結果。
type Score struct {
	AnsweredCount   int    // 非空の回答数
	SolidCount      int    // 十分な回答数
	AnsweredIndices []int  // 非空の質問インデックス（昇順）
	Ready           bool   // SolidCount >= ReadyCount
	Message         string // ユーザー向けの進捗メッセージ
}

// Aggregate は回答リストを集計する。overrideIndexが1..QuestionCountの場合、
// そのインデックスの回答を入力中のoverrideTextで差し替えて評価する
// （保存前のリアルタイム採点用）。
func Aggregate(answers []*model.Answer, overrideIndex int, overrideText string) Score {
	texts := make(map[int]string, model.QuestionCount)
	for _, a := range answers {
		texts[a.QIndex] = a.Answer
	}
	if overrideIndex >= 1 && overrideIndex <= model.QuestionCount {
		texts[overrideIndex] = overrideText
	}

	var score Score
	for i := 1; i <= model.QuestionCount; i++ {
		switch Classify(texts[i]) {
		case AnswerClassEmpty:
			// 未回答
		case AnswerClassShort:
			score.AnsweredCount++
			score.AnsweredIndices = append(score.AnsweredIndices, i)
		case AnswerClassSolid:
			score.AnsweredCount++
			score.SolidCount++
			score.AnsweredIndices = append(score.AnsweredIndices, i)
		}
	}

	score.Ready = score.SolidCount >= ReadyCount
	if score.Ready {
		score.Message = "Your voice profile is ready to commit."
	} else {
		score.Message = fmt.Sprintf("%d more solid answers needed before your voice profile is ready.", ReadyCount-score.SolidCount)
	}

	return score
}
