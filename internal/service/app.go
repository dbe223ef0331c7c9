package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"quorum/internal/auth"
	"quorum/internal/broker"
	"quorum/internal/config"
	"quorum/internal/jobs"
	"quorum/internal/logging"
	"quorum/internal/messaging"
	"quorum/internal/model"
	"quorum/internal/notifier"
	"quorum/internal/search"
	"quorum/internal/storage/repos"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation")
)

const (
	MaxTrustLevel     = 4
	maxUsernameLength = 40
	maxTitleLength    = 255
	defaultSearchSize = 20
	maxSearchSize     = 100
)

type AuthContext struct {
	User model.User
}

type App struct {
	Config   config.Config
	Store    *repos.Store
	Broker   broker.Broker
	Searcher *search.PostSearcher
	Notifier *notifier.Notifier
	Runner   *jobs.Runner
	Log      *slog.Logger
}

// New wires the notifier and its runner. A nil locker falls back to an
// in-process one.
func New(cfg config.Config, store *repos.Store, b broker.Broker, locker jobs.Locker, logger *slog.Logger) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	if locker == nil {
		locker = jobs.NewLocalLocker()
	}
	searcher := search.New(store)
	messenger := messaging.NewSystemMessenger(store, b, cfg.SavedSearches.SystemUsername, logger)
	n := notifier.New(store, searcher, messenger, notifier.Options{
		MinTrustLevel:     cfg.SavedSearches.MinTrustLevel,
		RecencyWindow:     config.RecencyWindow(cfg),
		MaxResultsPerTerm: cfg.SavedSearches.MaxResultsPerTerm,
		Logger:            logger,
	})
	runner := jobs.NewRunner(n, store, locker, cfg.SavedSearches.Concurrency, logger)
	runner.UserTimeout = config.LockTTL(cfg) * 9 / 10
	return &App{
		Config:   cfg,
		Store:    store,
		Broker:   b,
		Searcher: searcher,
		Notifier: n,
		Runner:   runner,
		Log:      logger,
	}
}

// BootstrapInit creates the system user and the first admin. The raw admin
// key is only returned here.
func (a *App) BootstrapInit(ctx context.Context, adminName string) (model.User, string, error) {
	if strings.TrimSpace(adminName) == "" {
		adminName = "admin"
	}
	if _, err := a.EnsureSystemUser(ctx); err != nil {
		return model.User{}, "", err
	}
	user, raw, err := a.CreateUser(ctx, adminName, MaxTrustLevel, true)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return model.User{}, "", fmt.Errorf("%w: admin already exists", ErrConflict)
		}
		return model.User{}, "", err
	}
	return user, raw, nil
}

// EnsureSystemUser returns the author of system messages, creating it on first use.
// The system user has no API key and cannot log in.
func (a *App) EnsureSystemUser(ctx context.Context) (model.User, error) {
	name := a.Config.SavedSearches.SystemUsername
	u, err := a.Store.GetUserByUsername(ctx, name)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, err
	}
	u, err = a.Store.CreateUser(ctx, repos.CreateUserInput{Username: name, TrustLevel: MaxTrustLevel, Admin: true})
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

func (a *App) Authenticate(ctx context.Context, rawKey string) (AuthContext, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" || auth.DetectKeyKind(rawKey) == "" {
		return AuthContext{}, ErrUnauthorized
	}
	user, err := a.Store.GetUserByAPIKeyHash(ctx, auth.HashKey(rawKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthContext{}, ErrUnauthorized
		}
		return AuthContext{}, err
	}
	return AuthContext{User: user}, nil
}

func (a *App) RequireAdmin(authCtx AuthContext) error {
	if authCtx.User.Admin {
		return nil
	}
	return ErrForbidden
}

func (a *App) CreateUser(ctx context.Context, username string, trustLevel int, admin bool) (model.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength || strings.ContainsAny(username, " \t\n") {
		return model.User{}, "", fmt.Errorf("%w: username must be 1-%d characters without spaces", ErrValidation, maxUsernameLength)
	}
	if err := validateTrustLevel(trustLevel); err != nil {
		return model.User{}, "", err
	}
	raw, hash, err := auth.GenerateAPIKey(auth.KeyKindLive)
	if err != nil {
		return model.User{}, "", err
	}
	user, err := a.Store.CreateUser(ctx, repos.CreateUserInput{
		Username:   username,
		TrustLevel: trustLevel,
		Admin:      admin,
		APIKeyHash: hash,
	})
	if err != nil {
		return model.User{}, "", mapStoreErr(err)
	}
	return user, raw, nil
}

func (a *App) RotateKey(ctx context.Context, userID string) (string, error) {
	raw, hash, err := auth.GenerateAPIKey(auth.KeyKindLive)
	if err != nil {
		return "", err
	}
	if err := a.Store.RotateAPIKey(ctx, userID, hash); err != nil {
		return "", mapStoreErr(err)
	}
	return raw, nil
}

func (a *App) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := a.Store.GetUser(ctx, id)
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

// ResolveUser accepts either a user id or a username.
func (a *App) ResolveUser(ctx context.Context, ref string) (model.User, error) {
	u, err := a.Store.GetUser(ctx, ref)
	if errors.Is(err, sql.ErrNoRows) {
		u, err = a.Store.GetUserByUsername(ctx, ref)
	}
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

func (a *App) SetTrustLevel(ctx context.Context, id string, level int) (model.User, error) {
	if err := validateTrustLevel(level); err != nil {
		return model.User{}, err
	}
	u, err := a.Store.SetTrustLevel(ctx, id, level)
	if err != nil {
		return model.User{}, mapStoreErr(err)
	}
	return u, nil
}

func (a *App) GetSavedSearches(ctx context.Context, userID string) ([]string, error) {
	return a.Store.SavedSearches(ctx, userID)
}

// SetSavedSearches replaces the user's list and returns what was stored.
func (a *App) SetSavedSearches(ctx context.Context, userID string, terms []string) ([]string, error) {
	cleaned, err := NormalizeTerms(terms, a.Config.SavedSearches.MaxPerUser, a.Config.SavedSearches.MaxTermLength)
	if err != nil {
		return nil, err
	}
	if _, err := a.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := a.Store.ReplaceSavedSearches(ctx, userID, cleaned); err != nil {
		return nil, err
	}
	return cleaned, nil
}

// NormalizeTerms trims terms and rejects blanks, overlong terms and lists
// longer than maxTerms. Order is kept.
func NormalizeTerms(terms []string, maxTerms, maxLength int) ([]string, error) {
	if len(terms) > maxTerms {
		return nil, fmt.Errorf("%w: at most %d saved searches allowed", ErrValidation, maxTerms)
	}
	out := make([]string, 0, len(terms))
	for i, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: saved search %d is blank", ErrValidation, i+1)
		}
		if utf8.RuneCountInString(t) > maxLength {
			return nil, fmt.Errorf("%w: saved search %d exceeds %d characters", ErrValidation, i+1, maxLength)
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *App) CreateTopic(ctx context.Context, userID, title, raw string) (model.Topic, model.Post, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return model.Topic{}, model.Post{}, fmt.Errorf("%w: title must be 1-%d characters", ErrValidation, maxTitleLength)
	}
	if strings.TrimSpace(raw) == "" {
		return model.Topic{}, model.Post{}, fmt.Errorf("%w: raw is required", ErrValidation)
	}
	topic, post, err := a.Store.CreateTopic(ctx, repos.CreateTopicInput{Title: title, UserID: userID, Raw: raw})
	if err != nil {
		return model.Topic{}, model.Post{}, mapStoreErr(err)
	}
	return topic, post, nil
}

// GetTopic hides invisible topics, and private messages from users not on them.
func (a *App) GetTopic(ctx context.Context, userID, topicID string) (model.Topic, error) {
	topic, err := a.Store.GetTopic(ctx, topicID)
	if err != nil {
		return model.Topic{}, mapStoreErr(err)
	}
	if !topic.Visible {
		return model.Topic{}, ErrNotFound
	}
	if topic.Archetype == model.TopicArchetypePrivateMessage {
		ok, err := a.Store.IsTopicAllowed(ctx, topic.ID, userID)
		if err != nil {
			return model.Topic{}, err
		}
		if !ok {
			return model.Topic{}, ErrNotFound
		}
	}
	return topic, nil
}

// Reply appends a post to a regular topic.
func (a *App) Reply(ctx context.Context, userID, topicID, raw string) (model.Post, error) {
	if strings.TrimSpace(raw) == "" {
		return model.Post{}, fmt.Errorf("%w: raw is required", ErrValidation)
	}
	topic, err := a.GetTopic(ctx, userID, topicID)
	if err != nil {
		return model.Post{}, err
	}
	if topic.Archetype != model.TopicArchetypeRegular {
		return model.Post{}, fmt.Errorf("%w: replies to private messages are not supported", ErrForbidden)
	}
	post, err := a.Store.CreatePost(ctx, repos.CreatePostInput{TopicID: topic.ID, UserID: userID, Raw: raw})
	if err != nil {
		return model.Post{}, mapStoreErr(err)
	}
	return post, nil
}

// DeletePost soft-deletes a post, which drops it from search. Authors may
// delete their own posts and admins any post.
func (a *App) DeletePost(ctx context.Context, authCtx AuthContext, postID int64) error {
	post, err := a.Store.GetPost(ctx, postID)
	if err != nil {
		return mapStoreErr(err)
	}
	if post.DeletedAt != nil {
		return ErrNotFound
	}
	if post.UserID != authCtx.User.ID && !authCtx.User.Admin {
		if _, err := a.GetTopic(ctx, authCtx.User.ID, post.TopicID); err != nil {
			return err
		}
		return fmt.Errorf("%w: only the author can delete this post", ErrForbidden)
	}
	return mapStoreErr(a.Store.DeletePost(ctx, postID))
}

// Search returns up to limit public matches, newest first.
func (a *App) Search(ctx context.Context, term string, limit int) ([]model.SearchResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("%w: q is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchSize
	}
	if limit > maxSearchSize {
		limit = maxSearchSize
	}
	out := make([]model.SearchResult, 0, limit)
	for r, err := range a.Searcher.Search(ctx, model.SearchQuery{Term: term, PublicOnly: true}) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *App) Inbox(ctx context.Context, userID string, page, perPage int) ([]model.PrivateMessage, int, error) {
	return a.Store.ListPrivateMessages(ctx, userID, page, perPage)
}

// RunSavedSearchNotification runs the job for one user now, sharing the
// scheduler's per-user exclusion.
func (a *App) RunSavedSearchNotification(ctx context.Context, userID string) (notifier.Result, error) {
	if _, err := a.GetUser(ctx, userID); err != nil {
		return notifier.Result{}, err
	}
	return a.Runner.RunUser(ctx, userID)
}

func (a *App) RunAllSavedSearchNotifications(ctx context.Context) (jobs.RunSummary, error) {
	return a.Runner.RunAll(ctx)
}

func (a *App) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.Store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	n, err := a.Store.CountTopicsBySubtype(ctx, model.TopicSubtypeSystemMessage)
	if err != nil {
		return nil, err
	}
	stats["system_messages"] = n
	return stats, nil
}

func validateTrustLevel(level int) error {
	if level < 0 || level > MaxTrustLevel {
		return fmt.Errorf("%w: trust_level must be between 0 and %d", ErrValidation, MaxTrustLevel)
	}
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case strings.Contains(err.Error(), "FOREIGN KEY"):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
