package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	reminderSubject = "Time to retrain your AI voice"

	reminderBody = `Hey %s,

It's been a while since you last updated your AI voice profile.
Your assistant answers in the voice you trained it with, and the best
coaches keep it sharp by refreshing their answers as their coaching evolves.

Jump back into the voice trainer and update a few answers:
%s/trainer

- Your EVA team
`
)

// Reminder はボイス再学習リマインダーの定期ジョブ。
// 最終学習日時が閾値より古い（または未学習の）ユーザーにメールを送る。
type Reminder struct {
	users     repository.UserRepository
	sender    Sender
	collector metrics.MetricsCollector
	after     time.Duration
	baseURL   string
}

// NewReminder はReminderの新しいインスタンスを生成する。
// afterが0以下の場合はデフォルト値の7日を使用する。
func NewReminder(
	users repository.UserRepository,
	sender Sender,
	collector metrics.MetricsCollector,
	after time.Duration,
	baseURL string,
) *Reminder {
	if after <= 0 {
		after = 7 * 24 * time.Hour
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Reminder{
		users:     users,
		sender:    sender,
		collector: collector,
		after:     after,
		baseURL:   baseURL,
	}
}

// Start は指定間隔のティッカーでリマインダージョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reminder) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("reminder job started",
		slog.Duration("interval", interval),
		slog.Duration("retrain_after", r.after),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		slog.Error("reminder cycle failed", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder job stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				slog.Error("reminder cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は全ユーザーを走査し、再学習が必要なユーザーにリマインダーを送る。
// 個別の送信失敗はログに残して続行する。
func (r *Reminder) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := r.users.ListAll(ctx)
	if err != nil {
		return err
	}

	cutoff := start.Add(-r.after)
	sent := 0
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		if u.LastTrainedAt != nil && u.LastTrainedAt.After(cutoff) {
			continue
		}

		name := u.Name
		if name == "" {
			name = "coach"
		}
		body := formatReminderBody(name, r.baseURL)
		if err := r.sender.Send(ctx, u.Email, reminderSubject, body); err != nil {
			slog.Error("failed to send reminder",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.collector.RecordReminderSent()
		sent++
	}

	slog.Info("reminder cycle completed",
		slog.Int("user_count", len(users)),
		slog.Int("sent_count", sent),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func formatReminderBody(name, baseURL string) string {
	return fmt.Sprintf(reminderBody, name, baseURL)
}
