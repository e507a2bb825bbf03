package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/synapse/internal/agent"
)

const discordLimit = 2000

// DiscordGateway answers direct messages and mentions. Its chat ids carry
// the "discord:" prefix so the Router can route scheduled output back.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain
	ctx     context.Context
}

func NewDiscordGateway(token string, brain agent.Brain) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return &DiscordGateway{Session: s, Brain: brain}, nil
}

func (d *DiscordGateway) Start(ctx context.Context) error {
	d.ctx = ctx
	remove := d.Session.AddHandler(d.onMessage)
	defer remove()

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	log.Printf("Authorized on discord as %s", d.Session.State.User.Username)

	<-ctx.Done()
	return d.Session.Close()
}

func (d *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	text := m.Content
	if m.GuildID != "" {
		mention := "<@" + s.State.User.ID + ">"
		if !strings.Contains(text, mention) {
			return
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
	}
	if text == "" {
		return
	}

	go d.handle(m.ChannelID, m.Author.Username, text)
}

func (d *DiscordGateway) handle(channelID, user, text string) {
	logIncoming("discord", user, text)

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	response, err := d.Brain.Think(ctx, "discord:"+channelID, text)
	if err != nil {
		log.Printf("Error thinking: %v", err)
		response = "I'm having trouble thinking right now..."
	}
	if err := d.Send(channelID, response); err != nil {
		log.Printf("Error replying to discord channel %s: %v", channelID, err)
	}
}

// Send posts to a channel id without the "discord:" prefix.
func (d *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunk(text, discordLimit) {
		if _, err := d.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
