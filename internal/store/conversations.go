package store

import (
	"context"
	"slices"

	"github.com/sujalbistaa/entrenous/internal/models"
)

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	return s.retry(ctx, "create_conversation", func() error {
		return s.q(ctx).Create(c).Error
	})
}

func (s *Store) ConversationByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var c models.Conversation
	err := s.retry(ctx, "conversation_by_id", func() error {
		return s.q(ctx).First(&c, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationByKey looks up the conversation for a canonical (a < b) pair and origin post.
func (s *Store) ConversationByKey(ctx context.Context, a, b, originPostID uint) (*models.Conversation, error) {
	var c models.Conversation
	err := s.retry(ctx, "conversation_by_key", func() error {
		return s.q(ctx).
			Where("participant_a = ? AND participant_b = ? AND origin_post_id = ?", a, b, originPostID).
			First(&c).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationsFor lists conversations userID takes part in, newest first.
func (s *Store) ConversationsFor(ctx context.Context, userID uint, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.retry(ctx, "conversations_for", func() error {
		return s.q(ctx).
			Where("participant_a = ? OR participant_b = ?", userID, userID).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&convs).Error
	})
	return convs, err
}

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	sealed, err := s.seal(m.Body)
	if err != nil {
		return err
	}
	m.BodySealed = sealed
	return s.retry(ctx, "create_message", func() error {
		return s.q(ctx).Create(m).Error
	})
}

// LatestMessages returns the newest limit messages of a conversation in
// chronological order, ties broken by insertion order.
func (s *Store) LatestMessages(ctx context.Context, conversationID uint, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.retry(ctx, "latest_messages", func() error {
		return s.q(ctx).
			Where("conversation_id = ?", conversationID).
			Order("created_at DESC").Order("id DESC").
			Limit(limit).
			Find(&msgs).Error
	})
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Body, err = s.open("message", msgs[i].ID, msgs[i].BodySealed); err != nil {
			return nil, err
		}
	}
	slices.Reverse(msgs)
	return msgs, nil
}
