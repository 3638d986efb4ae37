// Package telegram routes Telegram chats through the turn orchestrator.
// Each chat talks to one persona at a time, switchable with /persona.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/service/turn"
	"github.com/sandevgo/chorus/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

type Bot struct {
	bot    *tele.Bot
	cfg    *config.TelegramConfig
	runner *turn.Runner
	sender *sender

	mu       sync.Mutex
	personas map[int64]string // chat id → selected persona
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	runner *turn.Runner,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      b,
		cfg:      cfg,
		runner:   runner,
		sender:   newSender(b),
		personas: make(map[int64]string),
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	b.Handle("/persona", bot.handlePersona)
	b.Handle(tele.OnText, bot.handleMessage)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

// handlePersona switches the chat's persona: /persona <name>. Without a
// payload it lists the registered personas.
func (b *Bot) handlePersona(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		var sb strings.Builder
		sb.WriteString("Available personas:\n")
		for _, p := range b.runner.Personas() {
			fmt.Fprintf(&sb, "• %s — %s\n", p.Name, p.DisplayName)
		}
		sb.WriteString("\nSwitch with /persona <name>")
		return c.Send(sb.String())
	}

	var found bool
	for _, p := range b.runner.Personas() {
		if p.Name == name {
			found = true
			break
		}
	}
	if !found {
		return c.Send(fmt.Sprintf("Unknown persona %q. Use /persona to list them.", name))
	}

	b.mu.Lock()
	b.personas[c.Chat().ID] = name
	b.mu.Unlock()
	return c.Send(fmt.Sprintf("Switched to %s.", name))
}

func (b *Bot) personaFor(chatID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.personas[chatID]; ok {
		return p
	}
	return b.cfg.DefaultPersona
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)

	// Notify user we are working
	_ = c.Notify(tele.Typing)

	resp, err := b.runner.Run(ctx, turn.Request{
		UserID:  strconv.FormatInt(c.Sender().ID, 10),
		Persona: b.personaFor(c.Chat().ID),
		Message: c.Text(),
	})
	if err != nil {
		if errors.Is(err, turn.ErrSessionBusy) {
			return c.Send("Still working on your previous message, one moment.")
		}
		logger.Error().Err(err).Msg("turn failed")
		return c.Send(fmt.Sprintf("error: %v", err))
	}

	reply := resp.Reply
	if reply == "" {
		reply = "(no reply)"
	}
	if resp.QueueDepth > 0 {
		reply += fmt.Sprintf("\n\n_%d request(s) still queued for this persona._", resp.QueueDepth)
	}
	return b.sender.sendMarkdown(ctx, c.Chat(), reply, false)
}
