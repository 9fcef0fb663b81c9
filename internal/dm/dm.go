// Package dm manages two-party conversations started from public posts.
package dm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/content"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/store"
)

const (
	listLimit    = 200
	messageLimit = 200
)

// MessageView is a message relative to one viewer. The author id is not exposed.
type MessageView struct {
	Message    models.Message
	AuthorIsMe bool
}

type Manager struct {
	store         *store.Store
	locks         *keylock.Map
	maxBodyLength int
}

func NewManager(s *store.Store, locks *keylock.Map, maxBodyLength int) *Manager {
	if locks == nil {
		locks = keylock.New()
	}
	return &Manager{store: s, locks: locks, maxBodyLength: maxBodyLength}
}

// StartFromPost returns the conversation between initiator and the post's
// author about that post, creating it on first use.
func (m *Manager) StartFromPost(ctx context.Context, initiator, postID uint) (*models.Conversation, error) {
	post, err := m.store.PostByID(ctx, postID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && post.Hidden) {
		return nil, apperr.NotFound("post")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if post.AuthorID == initiator {
		return nil, apperr.InvalidOperation("cannot start a conversation with yourself")
	}

	a, b := initiator, post.AuthorID
	if a > b {
		a, b = b, a
	}
	unlock := m.locks.Lock(fmt.Sprintf("conversation:%d:%d:%d", a, b, postID))
	defer unlock()

	conv, err := m.store.ConversationByKey(ctx, a, b, postID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	conv = &models.Conversation{ParticipantA: a, ParticipantB: b, OriginPostID: postID}
	err = m.store.CreateConversation(ctx, conv)
	if errors.Is(err, store.ErrDuplicate) {
		conv, err = m.store.ConversationByKey(ctx, a, b, postID)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	logger.Log.Info("Conversation started",
		zap.Uint("conversation_id", conv.ID),
		zap.Uint("origin_post_id", postID),
	)
	return conv, nil
}

// Send appends a message from author to a conversation they take part in.
func (m *Manager) Send(ctx context.Context, conversationID, author uint, body string) (*models.Message, error) {
	if _, err := m.participantConversation(ctx, conversationID, author); err != nil {
		return nil, err
	}
	body, err := content.ValidateBody(body, m.maxBodyLength)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{ConversationID: conversationID, AuthorID: author, Body: body}
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Internal(err)
	}
	return msg, nil
}

// List returns the user's conversations, newest first.
func (m *Manager) List(ctx context.Context, user uint) ([]models.Conversation, error) {
	convs, err := m.store.ConversationsFor(ctx, user, listLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return convs, nil
}

// Messages returns the latest messages of a conversation in chronological
// order, marked relative to viewer.
func (m *Manager) Messages(ctx context.Context, conversationID, viewer uint) ([]MessageView, error) {
	if _, err := m.participantConversation(ctx, conversationID, viewer); err != nil {
		return nil, err
	}
	msgs, err := m.store.LatestMessages(ctx, conversationID, messageLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	views := make([]MessageView, len(msgs))
	for i, msg := range msgs {
		views[i] = MessageView{Message: msg, AuthorIsMe: msg.AuthorID == viewer}
	}
	return views, nil
}

func (m *Manager) participantConversation(ctx context.Context, conversationID, user uint) (*models.Conversation, error) {
	conv, err := m.store.ConversationByID(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("conversation")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !conv.HasParticipant(user) {
		return nil, apperr.Forbidden()
	}
	return conv, nil
}
