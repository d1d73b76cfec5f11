package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/zaisekibot/internal/config"
	"github.com/susu3304/zaisekibot/internal/stay"
	"github.com/susu3304/zaisekibot/internal/store"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

type Bot struct {
	session  *discordgo.Session
	tracker  *tracker.Tracker
	keeper   *stay.Keeper
	platform stay.Platform
	notifier *channelNotifier

	cancelKeeper context.CancelFunc
}

func New(cfg *config.Config, trk *tracker.Tracker, st store.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	notifier := &channelNotifier{session: session, channelID: cfg.NotifyChannelID}
	platform := &sessionPlatform{session: session}
	keeper := stay.NewKeeper(st, platform, notifier, cfg.StayInterval)
	if err := keeper.LoadState(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load stay map: %w", err)
	}

	bot := &Bot{
		session:  session,
		tracker:  trk,
		keeper:   keeper,
		platform: platform,
		notifier: notifier,
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onVoiceStateUpdate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	return bot, nil
}

func (b *Bot) Keeper() *stay.Keeper {
	return b.keeper
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancelKeeper = cancel
	go b.keeper.Run(ctx)

	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	if b.cancelKeeper != nil {
		b.cancelKeeper()
	}
	return b.session.Close()
}
