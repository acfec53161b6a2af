// Package bot provides the Telegram bot initialization and handler
// registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"besitos-bot/internal/config"
	"besitos-bot/internal/handler"
	"besitos-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler  *handler.AccountHandler
	reactionHandler *handler.ReactionHandler
	shopHandler     *handler.ShopHandler
	adminHandler    *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config          *config.Config
	WalletService   *service.WalletService
	DailyService    *service.DailyService
	StreakService   *service.StreakService
	ShopService     *service.ShopService
	ReactionService *service.ReactionService
	RewardService   *service.RewardService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	b.accountHandler = handler.NewAccountHandler(
		deps.WalletService, deps.DailyService, deps.StreakService, deps.Config.History.PageSize)
	b.reactionHandler = handler.NewReactionHandler(deps.Config, deps.ReactionService)
	b.shopHandler = handler.NewShopHandler(deps.ShopService)
	b.adminHandler = handler.NewAdminHandler(deps.WalletService, deps.RewardService)

	b.registerHandlers()

	return b, nil
}

// registerHandlers registers all command and text handlers.
func (b *Bot) registerHandlers() {
	b.bot.Use(WhitelistMiddleware(b.cfg))

	// Wallet commands
	b.bot.Handle("/saldo", b.accountHandler.HandleBalance)
	b.bot.Handle("/diario", b.accountHandler.HandleDaily)
	b.bot.Handle("/historial", b.accountHandler.HandleHistory)
	b.bot.Handle("/top", b.accountHandler.HandleTop)

	// Shop commands
	b.bot.Handle("/tienda", b.shopHandler.HandleShop)
	b.bot.Handle("/comprar", b.shopHandler.HandlePurchase)

	// Admin commands
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/dar", b.adminHandler.HandleGrant)
	adminGroup.Handle("/quitar", b.adminHandler.HandleDebit)
	adminGroup.Handle("/premios", b.adminHandler.HandleRewards)
	adminGroup.Handle("/addpremio", b.adminHandler.HandleAddReward)

	// Reactions ride on plain text replies
	b.bot.Handle(tele.OnText, b.reactionHandler.HandleText)
}

// Start begins polling for updates. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Bot started")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	b.bot.Stop()
}

// Send delivers a plain message to a user, for background notifications.
func (b *Bot) Send(userID int64, text string) {
	if _, err := b.bot.Send(&tele.User{ID: userID}, text); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send message")
	}
}
