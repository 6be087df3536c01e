// Package notify は招待メールなどの通知送信を提供する。
//
// 送信経路は Sender インターフェースで抽象化する。
// LogSender（ログ出力のみ）、SESSender（Amazon SES）、
// QueuedSender（Redisキュー経由の非同期送信）を設定で切り替える。
package notify

import (
	"context"
	"log/slog"
)

// Message は送信する1通のメール。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Sender は通知送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender はメールを送信せずログに出力するSender。開発環境で使用する。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send はメッセージの宛先・件名・本文をログに出力する。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification (log only)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)
	return nil
}

// compile-time interface check
var _ Sender = (*LogSender)(nil)
