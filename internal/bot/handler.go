package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"linkdrop/internal/domain"
	"linkdrop/internal/quota"
	"linkdrop/internal/submission"
)

const usage = `Commands:
/users - list everyone you can send to
/send <from> <to> <url> [note] - share a link
/quota <slug> - submissions left today
/inbox <slug> - unwatched links
/archive <slug> [platform:<name>] [search] - watched links
/watched <link-id> - move a link to the archive`

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot *tgbot.Bot
	svc *submission.Service
	loc *time.Location
	log logrus.FieldLogger
}

// NewHandler creates a new bot handler instance. Times in replies are shown in loc.
func NewHandler(token string, svc *submission.Service, loc *time.Location, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		svc: svc,
		loc: loc,
		log: log,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers.
func (h *Handler) registerHandlers() {
	commands := map[string]tgbot.HandlerFunc{
		"/start":   h.startHandler,
		"/users":   h.usersHandler,
		"/send":    h.sendHandler,
		"/quota":   h.quotaHandler,
		"/inbox":   h.inboxHandler,
		"/archive": h.archiveHandler,
		"/watched": h.watchedHandler,
	}
	for cmd, fn := range commands {
		h.bot.RegisterHandlerMatchFunc(matchCommand(cmd), fn)
	}
	h.log.WithField("count", len(commands)).Info("Registered command handlers")
}

// matchCommand matches messages whose first word is name, optionally
// addressed as name@botname. "/sendall" does not match "/send".
func matchCommand(name string) tgbot.MatchFunc {
	return func(update *models.Update) bool {
		if update.Message == nil {
			return false
		}
		fields := strings.Fields(update.Message.Text)
		if len(fields) == 0 {
			return false
		}
		cmd, _, _ := strings.Cut(fields[0], "@")
		return cmd == name
	}
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, update *models.Update, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Error("Failed to send reply")
	}
}

// command returns the message text and a logger for it, or false for updates without a message.
func (h *Handler) command(update *models.Update, name string) (string, logrus.FieldLogger, bool) {
	if update.Message == nil {
		return "", nil, false
	}
	log := h.log.WithFields(logrus.Fields{
		"chat_id": update.Message.Chat.ID,
		"command": name,
	})
	log.Debug("Received command")
	return update.Message.Text, log, true
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if _, _, ok := h.command(update, "/start"); !ok {
		return
	}
	h.reply(ctx, b, update, "Share links with each other, two per day.\n\n"+usage)
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.log.WithField("chat_id", update.Message.Chat.ID).Debug("Received unhandled message")
	h.reply(ctx, b, update, usage)
}

func (h *Handler) usersHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	_, log, ok := h.command(update, "/users")
	if !ok {
		return
	}
	users, err := h.svc.Users(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list users")
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	h.reply(ctx, b, update, formatUsers(users))
}

func (h *Handler) sendHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	text, log, ok := h.command(update, "/send")
	if !ok {
		return
	}
	req, err := parseSend(text)
	if err != nil {
		h.reply(ctx, b, update, err.Error())
		return
	}

	link, err := h.svc.Submit(ctx, req)
	if err != nil {
		log.WithError(err).Info("Submission not accepted")
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	h.reply(ctx, b, update, fmt.Sprintf("Sent to %s: %s", req.Recipient, describe(link)))
}

func (h *Handler) quotaHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	text, _, ok := h.command(update, "/quota")
	if !ok {
		return
	}
	slug, err := singleArg(text, "/quota <slug>")
	if err != nil {
		h.reply(ctx, b, update, err.Error())
		return
	}
	e, err := h.svc.Eligibility(ctx, slug)
	if err != nil {
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	h.reply(ctx, b, update, formatEligibility(e, h.loc))
}

func (h *Handler) inboxHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	text, log, ok := h.command(update, "/inbox")
	if !ok {
		return
	}
	slug, err := singleArg(text, "/inbox <slug>")
	if err != nil {
		h.reply(ctx, b, update, err.Error())
		return
	}
	links, err := h.svc.Inbox(ctx, slug)
	h.replyLinks(ctx, b, update, log, links, err, "Inbox is empty.")
}

func (h *Handler) archiveHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	text, log, ok := h.command(update, "/archive")
	if !ok {
		return
	}
	slug, filter, err := parseArchive(text)
	if errors.Is(err, domain.ErrUnknownPlatform) {
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	if err != nil {
		h.reply(ctx, b, update, err.Error())
		return
	}
	links, err := h.svc.Archive(ctx, slug, filter)
	h.replyLinks(ctx, b, update, log, links, err, "Nothing in the archive matches.")
}

func (h *Handler) replyLinks(
	ctx context.Context, b *tgbot.Bot, update *models.Update, log logrus.FieldLogger,
	links []domain.LinkWithSender, err error, empty string,
) {
	if err != nil {
		log.WithError(err).Info("Listing failed")
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	if len(links) == 0 {
		h.reply(ctx, b, update, empty)
		return
	}
	h.reply(ctx, b, update, formatLinks(links))
}

func (h *Handler) watchedHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	text, _, ok := h.command(update, "/watched")
	if !ok {
		return
	}
	id, err := singleArg(text, "/watched <link-id>")
	if err != nil {
		h.reply(ctx, b, update, err.Error())
		return
	}
	if err := h.svc.MarkWatched(ctx, id); err != nil {
		h.reply(ctx, b, update, errorText(err, h.loc))
		return
	}
	h.reply(ctx, b, update, "Archived.")
}

// parseSend parses "/send <from> <to> <url> [note...]".
func parseSend(text string) (submission.Request, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return submission.Request{}, errors.New("usage: /send <from> <to> <url> [note]")
	}
	return submission.Request{
		Sender:    fields[1],
		Recipient: fields[2],
		URL:       fields[3],
		Note:      strings.Join(fields[4:], " "),
	}, nil
}

// parseArchive parses "/archive <slug> [platform:<name>] [search words...]".
func parseArchive(text string) (string, submission.ArchiveFilter, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", submission.ArchiveFilter{}, errors.New("usage: /archive <slug> [platform:<name>] [search]")
	}
	var platformName string
	var words []string
	for _, f := range fields[2:] {
		if name, ok := strings.CutPrefix(f, "platform:"); ok && platformName == "" {
			platformName = name
			continue
		}
		words = append(words, f)
	}
	filter, err := submission.NewArchiveFilter(platformName, strings.Join(words, " "))
	if err != nil {
		return "", submission.ArchiveFilter{}, err
	}
	return fields[1], filter, nil
}

func singleArg(text, syntax string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: %s", syntax)
	}
	return fields[1], nil
}

// errorText is the user-facing message for err. Infrastructure failures are not detailed.
func errorText(err error, loc *time.Location) string {
	var rl *domain.RateLimitError
	switch {
	case errors.As(err, &rl):
		return fmt.Sprintf("You've used both submissions today (%d/%d). Next one at %s.",
			rl.CountToday, quota.DailyLimit, rl.NextEligibleAt.In(loc).Format("Mon 15:04 MST"))
	case errors.Is(err, domain.ErrEmptyURL):
		return "Please enter a URL."
	case errors.Is(err, domain.ErrInvalidURL):
		return "Please enter a valid URL."
	case errors.Is(err, domain.ErrSelfSend):
		return "Cannot send to yourself."
	case errors.Is(err, domain.ErrUserNotFound):
		return "Unknown user. Try /users."
	case errors.Is(err, domain.ErrLinkNotFound):
		return "No link with that id."
	case errors.Is(err, domain.ErrUnknownPlatform):
		return "Unknown platform. Use one of: " + platformNames() + "."
	case errors.Is(err, domain.ErrSubmissionFailed):
		return "Failed to submit link."
	default:
		return "Something went wrong, please try again."
	}
}

func platformNames() string {
	names := make([]string, 0, len(domain.Platforms()))
	for _, p := range domain.Platforms() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func formatUsers(users []domain.User) string {
	if len(users) == 0 {
		return "No users yet."
	}
	var sb strings.Builder
	for _, u := range users {
		fmt.Fprintf(&sb, "%s - %s\n", u.Slug, u.Name)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatEligibility(e quota.Eligibility, loc *time.Location) string {
	if e.Allowed {
		return fmt.Sprintf("%d/%d left today.", e.Remaining(), quota.DailyLimit)
	}
	next := "tomorrow"
	if e.NextEligibleAt != nil {
		next = e.NextEligibleAt.In(loc).Format("Mon 15:04 MST")
	}
	return fmt.Sprintf("0/%d left today. Next submission at %s.", quota.DailyLimit, next)
}

func describe(link domain.Link) string {
	label := link.URL
	if link.Title != nil {
		label = *link.Title
	}
	return fmt.Sprintf("[%s] %s", link.PlatformTag, label)
}

func formatLinks(links []domain.LinkWithSender) string {
	var sb strings.Builder
	for i, l := range links {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s\nfrom %s: %s", describe(l.Link), l.Sender.Name, l.URL)
		if l.Note != nil {
			fmt.Fprintf(&sb, "\n%q", *l.Note)
		}
		fmt.Fprintf(&sb, "\nid: %s", l.ID)
	}
	return sb.String()
}
