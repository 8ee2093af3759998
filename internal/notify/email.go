// Package notify はメール通知と定期リマインダージョブを提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Sender はメール送信のインターフェース。
type Sender interface {
	// Send は1通のメールを送信する。
	Send(ctx context.Context, to, subject, text string) error
}

// ResendSender はResend API経由でメールを送信する。
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender はResendSenderの新しいインスタンスを生成する。
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send はResend API経由でメールを1通送信する。
func (s *ResendSender) Send(ctx context.Context, to, subject, text string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Text:    text,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	slog.Info("email sent",
		slog.String("email_id", sent.Id),
		slog.String("subject", subject),
	)
	return nil
}

// LogSender はメールを送信せずログに記録する。
// APIキー未設定の開発環境向けフォールバック。
type LogSender struct{}

// Send はメール内容をログに出力する。
func (s *LogSender) Send(ctx context.Context, to, subject, text string) error {
	slog.Info("email suppressed (no RESEND_API_KEY)",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// NewSender は設定に応じたSenderを返す。
// apiKeyが空の場合はログ出力のみのLogSenderを返す。
func NewSender(apiKey, from string) Sender {
	if apiKey == "" {
		return &LogSender{}
	}
	return NewResendSender(apiKey, from)
}
