package notifier

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/obx/internal/config"
	"github.com/semmidev/obx/internal/domain"
)

const sendTimeout = 30 * time.Second

// TelegramNotifier sends run results as text messages. Archives are never
// sent. The bot is set up on the first message, so building a notifier
// does not contact the API.
type TelegramNotifier struct {
	token    string
	endpoint string
	client   tgbotapi.HTTPClient
	chatID   int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegram(cfg *config.TelegramConfig) (*TelegramNotifier, error) {
	return NewTelegramWithEndpoint(cfg, tgbotapi.APIEndpoint, nil)
}

// NewTelegramWithEndpoint talks to a custom Bot API endpoint, a format
// string taking the token and the method name.
func NewTelegramWithEndpoint(cfg *config.TelegramConfig, endpoint string, client tgbotapi.HTTPClient) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	return &TelegramNotifier{
		token:    cfg.BotToken,
		endpoint: endpoint,
		client:   client,
		chatID:   chatID,
	}, nil
}

// botAPI returns the bot, creating it on first use. A failed setup is
// retried on the next message.
func (t *TelegramNotifier) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) NotifySuccess(ctx context.Context, artifact domain.BackupArtifact) error {
	message := fmt.Sprintf(
		"✅ Backup Created\n\n"+
			"🗄 Database: %s\n"+
			"📁 File: %s\n"+
			"📊 Size: %s\n"+
			"🗂 Filestore: %d files (%s)\n"+
			"⏱ Duration: %s\n"+
			"🕐 Time: %s",
		artifact.Database,
		filepath.Base(artifact.Path),
		humanize.Bytes(uint64(artifact.ArchiveSize)),
		artifact.FilestoreFiles,
		humanize.Bytes(uint64(artifact.FilestoreSize)),
		artifact.Duration.Round(time.Second),
		artifact.CreatedAt.Format("2006-01-02 15:04:05"),
	)
	return t.send(ctx, message)
}

func (t *TelegramNotifier) NotifyFailure(ctx context.Context, database string, err error) error {
	stage, _ := domain.FailedStage(err)
	message := fmt.Sprintf(
		"❌ Backup Failed\n\n"+
			"🗄 Database: %s\n"+
			"🚧 Stage: %s\n"+
			"💬 Error: %v",
		database, stage, err,
	)
	return t.send(ctx, message)
}

// send gives up when ctx is done. The request itself is bounded by the
// HTTP client timeout.
func (t *TelegramNotifier) send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		bot, err := t.botAPI()
		if err == nil {
			_, err = bot.Send(tgbotapi.NewMessage(t.chatID, message))
			if err != nil {
				err = fmt.Errorf("failed to send telegram notification: %w", err)
			}
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
