package bot

import (
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"Gena/core"
	"Gena/lib/sl"
)

const errorResponse = "Sorry, I'm not available right now. Please try again later."

// TgBot is an optional chat channel: private Telegram messages become
// turns in the same session/quota regime as the HTTP API.
type TgBot struct {
	conf        *core.Config
	log         *slog.Logger
	api         *tgbotapi.BotAPI
	chat        core.ChatService
	botUsername string
	stop        chan struct{}
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, err
	}
	return &TgBot{
		conf:        conf,
		log:         log.With(sl.Module("tgbot")),
		api:         api,
		botUsername: conf.Telegram.Username,
		stop:        make(chan struct{}),
	}, nil
}

// SetChat set chat service
func (t *TgBot) SetChat(chat core.ChatService) {
	t.chat = chat
}

func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	for {
		select {
		case <-t.stop:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			incoming := update.Message
			if !incoming.Chat.IsPrivate() || incoming.Text == "" {
				continue
			}

			logText := incoming.Text
			if len(logText) > 50 {
				logText = logText[:50] + "..."
			}
			t.log.With(
				slog.String("from", incoming.From.UserName),
				slog.String("text", logText),
			).Info("incoming message")

			go t.SendResponse(incoming.Chat.ID, incoming.Text)
		}
	}
}

func (t *TgBot) Stop() {
	close(t.stop)
}

func (t *TgBot) composeReply(chatId int64, request string) string {
	userId := strconv.FormatInt(chatId, 10)
	response, err := t.chat.GetResponse(userId, request)
	if err != nil {
		t.log.Error("getting response", sl.User(userId), sl.Err(err))
		return errorResponse
	}
	return response
}

func (t *TgBot) SendResponse(chatId int64, request string) {
	stopTicker := make(chan bool)
	replyReady := make(chan string)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		t.sendChatAction(chatId, "typing")
		for {
			select {
			case <-ticker.C:
				t.sendChatAction(chatId, "typing")
			case <-stopTicker:
				return
			}
		}
	}()

	go func() {
		replyReady <- t.composeReply(chatId, request)
	}()

	reply := <-replyReady
	stopTicker <- true

	t.plainResponse(chatId, reply)
}

func (t *TgBot) sendChatAction(chatId int64, action string) {
	msg := tgbotapi.NewChatAction(chatId, action)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending chat action", sl.Err(err))
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}
