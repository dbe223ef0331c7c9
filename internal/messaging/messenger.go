// Package messaging delivers system private messages to users.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"quorum/internal/broker"
	"quorum/internal/logging"
	"quorum/internal/model"
	"quorum/internal/storage/repos"
)

type TopicStore interface {
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateTopic(ctx context.Context, in repos.CreateTopicInput) (model.Topic, model.Post, error)
}

// SystemMessenger posts private messages as the configured system user.
type SystemMessenger struct {
	store          TopicStore
	broker         broker.Broker
	systemUsername string
	log            *slog.Logger

	mu     sync.Mutex
	system *model.User
}

func NewSystemMessenger(store TopicStore, b broker.Broker, systemUsername string, logger *slog.Logger) *SystemMessenger {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SystemMessenger{
		store:          store,
		broker:         b,
		systemUsername: systemUsername,
		log:            logger,
	}
}

func (m *SystemMessenger) systemUser(ctx context.Context) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.system != nil {
		return *m.system, nil
	}
	u, err := m.store.GetUserByUsername(ctx, m.systemUsername)
	if err != nil {
		return model.User{}, fmt.Errorf("load system user %q: %w", m.systemUsername, err)
	}
	m.system = &u
	return u, nil
}

// DeliverSavedSearchResults creates one system message for recipient and
// pings their live mailbox. A mailbox failure does not fail the delivery.
func (m *SystemMessenger) DeliverSavedSearchResults(ctx context.Context, recipient model.User, summary model.SavedSearchSummary) (model.Topic, error) {
	sys, err := m.systemUser(ctx)
	if err != nil {
		return model.Topic{}, err
	}
	title := SavedSearchTitle(summary.Total())
	topic, _, err := m.store.CreateTopic(ctx, repos.CreateTopicInput{
		Title:          title,
		UserID:         sys.ID,
		Archetype:      model.TopicArchetypePrivateMessage,
		Subtype:        model.TopicSubtypeSystemMessage,
		Raw:            SavedSearchBody(summary),
		AllowedUserIDs: []string{sys.ID, recipient.ID},
	})
	if err != nil {
		return model.Topic{}, fmt.Errorf("create system message: %w", err)
	}
	if m.broker != nil {
		n := model.Notification{
			ID:        topic.ID,
			UserID:    recipient.ID,
			Kind:      model.NotificationSavedSearchResults,
			TopicID:   topic.ID,
			Title:     title,
			Count:     summary.Total(),
			CreatedAt: topic.CreatedAt,
		}
		if err := m.broker.SendDirect(ctx, n); err != nil {
			m.log.Warn("live notification failed", "user_id", recipient.ID, "topic_id", topic.ID, "error", err)
		}
	}
	return topic, nil
}

func SavedSearchTitle(count int) string {
	if count == 1 {
		return "1 new result for your saved searches"
	}
	return fmt.Sprintf("%d new results for your saved searches", count)
}

// SavedSearchBody renders one markdown section per term.
func SavedSearchBody(summary model.SavedSearchSummary) string {
	var b strings.Builder
	b.WriteString("New posts matching your saved searches:\n")
	for _, tr := range summary.Terms {
		fmt.Fprintf(&b, "\n### %s\n\n", tr.Term)
		for _, r := range tr.Results {
			author := r.AuthorUsername
			if author == "" {
				author = r.AuthorID
			}
			fmt.Fprintf(&b, "- [%s](/t/%s/%d) by @%s", r.TopicTitle, r.TopicID, r.PostNumber, author)
			if ex := strings.TrimSpace(r.Excerpt); ex != "" {
				fmt.Fprintf(&b, ": %s", ex)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
