package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"lmswatch/internal/core"
	"lmswatch/internal/events"
	"lmswatch/internal/poller"
	"lmswatch/internal/portal"
	"lmswatch/internal/store"
)

// Config holds bot configuration
type Config struct {
	Token         string
	OwnerID       string
	CommandPrefix string
}

// Bot is the Discord front end. It dispatches commands, runs the DM
// registration flow and delivers event notifications (it is the poller's
// Notifier).
type Bot struct {
	session  *discordgo.Session
	store    *store.Store
	poller   *poller.Poller
	detector *events.Detector
	logger   *core.Logger
	config   Config
	reg      *sessionTracker
}

// New creates the bot and registers its handlers
func New(config Config, subscribers *store.Store, p *poller.Poller,
	detector *events.Detector, logger *core.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	b := &Bot{
		session:  session,
		store:    subscribers,
		poller:   p,
		detector: detector,
		logger:   logger,
		config:   config,
		reg:      newSessionTracker(),
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessage)

	return b, nil
}

// Start opens the Discord connection
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

// Stop closes the Discord connection
func (b *Bot) Stop() error {
	b.logger.Info("Closing discord connection")
	return b.session.Close()
}

// Deliver implements the poller's Notifier: it DMs the subscriber an embed
// with the new events.
func (b *Bot) Deliver(ctx context.Context, subscriberID string, evts []events.Event) error {
	channel, err := b.session.UserChannelCreate(subscriberID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}

	_, err = b.session.ChannelMessageSendEmbed(channel.ID, eventEmbed("🔔 New LMS Updates", evts))
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("Connected to Discord", "user", r.User.Username)
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ctx := context.Background()
	isDM := m.GuildID == ""

	// An active registration flow consumes the user's DMs before command
	// dispatch, since the messages are credentials, not commands.
	if isDM {
		if sess, ok := b.reg.Get(m.Author.ID); ok {
			b.handleRegistrationStep(ctx, m, sess)
			return
		}
	}

	if !strings.HasPrefix(m.Content, b.config.CommandPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, b.config.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	command, args := fields[0], fields[1:]

	switch command {
	case "register":
		b.handleRegister(m, isDM)
	case "unregister":
		b.handleUnregister(ctx, m)
	case "window":
		b.handleWindow(ctx, m, args)
	case "upcoming":
		b.handleUpcoming(ctx, m)
	case "force_check":
		b.handleForceCheck(ctx, m)
	case "bothelp":
		b.reply(m, helpText(b.config.CommandPrefix))
	case "remove_all_users":
		b.handleRemoveAllUsers(ctx, m)
	default:
		b.reply(m, fmt.Sprintf("Command not found. Use %sbothelp to see available commands.", b.config.CommandPrefix))
	}
}

func (b *Bot) handleRegister(m *discordgo.MessageCreate, isDM bool) {
	channel, err := b.session.UserChannelCreate(m.Author.ID)
	if err != nil {
		b.logger.Error("Failed to open DM channel", "user", m.Author.ID, "error", err)
		return
	}

	if !isDM {
		b.reply(m, "I've sent you a DM to start the registration process.")
	}

	b.reg.Begin(m.Author.ID)
	b.send(channel.ID, "Please enter your LMS username:")
}

func (b *Bot) handleRegistrationStep(ctx context.Context, m *discordgo.MessageCreate, sess *regSession) {
	switch sess.State {
	case stateAwaitingUsername:
		sess.Username = strings.TrimSpace(m.Content)
		sess.State = stateAwaitingPassword
		b.send(m.ChannelID, "Please enter your LMS password:")

	case stateAwaitingPassword:
		username := sess.Username
		password := m.Content
		b.reg.End(m.Author.ID)

		if err := b.store.AddUser(ctx, m.Author.ID, username, password); err != nil {
			b.logger.Error("Failed to register subscriber", "user", m.Author.ID, "error", err)
			b.send(m.ChannelID, "Registration failed. Please try again later.")
			return
		}

		b.send(m.ChannelID, "You've been registered successfully! Checking for updates now...")

		// Immediate check so the new subscriber gets feedback right away.
		n, err := b.poller.CheckNow(ctx, m.Author.ID)
		if err != nil {
			b.send(m.ChannelID, checkFailureText(err))
			return
		}
		if n == 0 {
			b.send(m.ChannelID, "No new updates found at the moment. You'll receive updates when they're available.")
		}
	}
}

func (b *Bot) handleUnregister(ctx context.Context, m *discordgo.MessageCreate) {
	if err := b.requireRegistered(ctx, m); err != nil {
		return
	}

	if err := b.store.Remove(ctx, m.Author.ID); err != nil {
		b.logger.Error("Failed to unregister subscriber", "user", m.Author.ID, "error", err)
		b.reply(m, "Unregistration failed. Please try again later.")
		return
	}
	b.detector.Forget(m.Author.ID)

	b.reply(m, "Your credentials have been removed. You won't receive further updates.")
}

func (b *Bot) handleWindow(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if err := b.requireRegistered(ctx, m); err != nil {
		return
	}

	if len(args) == 0 {
		weeks, err := b.store.GetWindow(ctx, m.Author.ID)
		if err != nil {
			b.logger.Error("Failed to get window", "user", m.Author.ID, "error", err)
			return
		}
		b.reply(m, fmt.Sprintf("Your notification window is %d week(s). Use `%swindow <1-4>` to change it.", weeks, b.config.CommandPrefix))
		return
	}

	weeks, err := strconv.Atoi(args[0])
	if err != nil {
		b.reply(m, "Please provide the window in weeks, e.g. `!window 2`.")
		return
	}

	if err := b.store.SetWindow(ctx, m.Author.ID, weeks); err != nil {
		b.reply(m, "The window must be between 1 and 4 weeks.")
		return
	}

	b.reply(m, fmt.Sprintf("Notification window set to %d week(s).", weeks))
}

func (b *Bot) handleUpcoming(ctx context.Context, m *discordgo.MessageCreate) {
	if err := b.requireRegistered(ctx, m); err != nil {
		return
	}

	evts, err := b.poller.Upcoming(ctx, m.Author.ID)
	if err != nil {
		b.reply(m, checkFailureText(err))
		return
	}

	if len(evts) == 0 {
		b.reply(m, "No upcoming events found.")
		return
	}

	channel, err := b.session.UserChannelCreate(m.Author.ID)
	if err != nil {
		b.logger.Error("Failed to open DM channel", "user", m.Author.ID, "error", err)
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(channel.ID, eventEmbed("📆 Upcoming LMS Events", evts)); err != nil {
		b.logger.Error("Failed to send upcoming events", "user", m.Author.ID, "error", err)
	}
}

func (b *Bot) handleForceCheck(ctx context.Context, m *discordgo.MessageCreate) {
	if err := b.requireRegistered(ctx, m); err != nil {
		return
	}

	b.reply(m, "Forcing an update check...")

	n, err := b.poller.CheckNow(ctx, m.Author.ID)
	if err != nil {
		b.reply(m, checkFailureText(err))
		return
	}

	if n == 0 {
		b.reply(m, "Update check completed. No new events.")
	} else {
		b.reply(m, fmt.Sprintf("Update check completed. %d new event(s) sent to your DMs.", n))
	}
}

func (b *Bot) handleRemoveAllUsers(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author.ID != b.config.OwnerID {
		b.reply(m, "Only the bot owner can use this command.")
		return
	}

	if err := b.store.RemoveAll(ctx); err != nil {
		b.logger.Error("Failed to remove all users", "error", err)
		b.reply(m, "Failed to remove user data.")
		return
	}
	b.detector.Reset()

	b.reply(m, "All user data has been removed.")
}

// requireRegistered replies with a registration hint and returns an error
// when the author has no stored credentials.
func (b *Bot) requireRegistered(ctx context.Context, m *discordgo.MessageCreate) error {
	ok, err := b.store.Exists(ctx, m.Author.ID)
	if err != nil {
		b.logger.Error("Failed to check registration", "user", m.Author.ID, "error", err)
		return err
	}
	if !ok {
		b.reply(m, fmt.Sprintf("You're not registered yet. Use %sregister to set up your LMS credentials.", b.config.CommandPrefix))
		return store.ErrNotRegistered
	}
	return nil
}

func (b *Bot) reply(m *discordgo.MessageCreate, content string) {
	b.send(m.ChannelID, content)
}

func (b *Bot) send(channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Error("Failed to send message", "channel", channelID, "error", err)
	}
}

func checkFailureText(err error) string {
	switch {
	case errors.Is(err, portal.ErrAuthFailed):
		return "Login to the LMS portal failed. Please re-register with `!register` if your password changed."
	case errors.Is(err, portal.ErrFetchFailed):
		return "The LMS portal could not be reached. Please try again later."
	default:
		return "An error occurred during the update check."
	}
}

func helpText(prefix string) string {
	return "👋 Welcome to the LMS Update Bot! Here are the available commands:\n\n" +
		fmt.Sprintf("🔹 `%sregister`: Start the registration process to receive LMS updates.\n", prefix) +
		fmt.Sprintf("🔹 `%sunregister`: Remove your credentials and stop updates.\n", prefix) +
		fmt.Sprintf("🔹 `%supcoming`: Show all upcoming events, including ones you've already seen.\n", prefix) +
		fmt.Sprintf("🔹 `%swindow <1-4>`: Set how many weeks ahead to look for events.\n", prefix) +
		fmt.Sprintf("🔹 `%sforce_check`: Manually check for LMS updates.\n", prefix) +
		fmt.Sprintf("🔹 `%sbothelp`: Display this help message.\n\n", prefix) +
		fmt.Sprintf("To get started, use the `%sregister` command to set up your LMS credentials. "+
			"After registration, you'll receive automatic updates every 30 minutes.", prefix)
}
