package bot

import (
	"context"
	"fmt"
	"strings"

	"domiflash/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Agent produces the conversational answer for customer chats. The real
// implementation (the LLM order-taking pipeline) lives outside this module;
// a nil agent keeps the fallback reply.
type Agent interface {
	Reply(ctx context.Context, chatID int64, text string) (string, error)
}

// Bot routes incoming Telegram messages: roster drivers go to the dispatch
// coordinator, everyone else to the conversational agent.
type Bot struct {
	api         *tgbotapi.BotAPI
	drivers     *services.DriverRegistry
	coordinator *services.Coordinator
	agent       Agent
	log         *logrus.Logger
}

func New(api *tgbotapi.BotAPI, drivers *services.DriverRegistry, coordinator *services.Coordinator, agent Agent, log *logrus.Logger) *Bot {
	return &Bot{
		api:         api,
		drivers:     drivers,
		coordinator: coordinator,
		agent:       agent,
		log:         log,
	}
}

// Start consumes updates until the channel closes. Each message is handled
// in its own goroutine: driver replies and customer sessions are
// independent units of work and must not block each other.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		chatID := update.Message.Chat.ID
		text := strings.TrimSpace(update.Message.Text)

		switch {
		case text == "/start":
			b.send(chatID, "Envía un mensaje para iniciar la conversación.")
		case text == "/id":
			b.send(chatID, fmt.Sprintf("Tu chat_id es: %d", chatID))
		case b.drivers.IsDriverChat(chatID):
			go b.handleDriverMessage(context.Background(), chatID, text)
		default:
			go b.handleCustomerMessage(context.Background(), chatID, text)
		}
	}
}

func (b *Bot) handleDriverMessage(ctx context.Context, chatID int64, text string) {
	outcome := b.coordinator.OnDriverReply(ctx, chatID, text)
	b.log.WithFields(logrus.Fields{
		"driver_chat_id": chatID,
		"action":         outcome.Action,
		"dispatch_id":    outcome.DispatchID,
	}).Info("respuesta de domiciliario procesada")
	b.send(chatID, outcome.Reply)
}

func (b *Bot) handleCustomerMessage(ctx context.Context, chatID int64, text string) {
	if b.agent == nil {
		b.send(chatID, "El agente no está inicializado (revisa logs / secretos).")
		return
	}
	answer, err := b.agent.Reply(ctx, chatID, text)
	if err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("el agente falló procesando el mensaje")
		b.send(chatID, "Se presentó un error procesando el pedido.")
		return
	}
	b.send(chatID, answer)
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("bot send error")
	}
}
