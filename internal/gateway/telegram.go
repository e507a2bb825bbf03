package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/synapse/internal/agent"
)

const telegramLimit = 4096

type TelegramGateway struct {
	Bot   *tgbotapi.BotAPI
	Brain agent.Brain
}

func NewTelegramGateway(token string, brain agent.Brain) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:   bot,
		Brain: brain,
	}, nil
}

// Start handles each message in its own goroutine so a long plan in one
// chat does not hold up the others.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	logIncoming("telegram", senderName(m), m.Text)

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	response, err := tg.Brain.Think(ctx, chatID, m.Text)
	if err != nil {
		log.Printf("Error thinking: %v", err)
		response = "I'm having trouble thinking right now..."
	}

	for _, part := range chunk(response, telegramLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(m.Chat.ID, part)); err != nil {
			log.Printf("Error replying to %s: %v", chatID, err)
			return
		}
	}
}

// senderName names who wrote m. From is empty for messages posted on behalf
// of a channel.
func senderName(m *tgbotapi.Message) string {
	switch {
	case m.From != nil:
		return m.From.UserName
	case m.SenderChat != nil:
		return m.SenderChat.Title
	default:
		return "unknown"
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range chunk(text, telegramLimit) {
		msg := tgbotapi.NewMessage(id, part)
		if _, err := tg.Bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
