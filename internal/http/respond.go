package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/apperr"
	"github.com/sujalbistaa/entrenous/internal/dm"
	"github.com/sujalbistaa/entrenous/internal/feed"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// respondError writes the taxonomy error for err and aborts the chain.
// Denials never say which rule fired and internal causes never leave the process.
func respondError(c *gin.Context, err error) {
	e := apperr.As(err)
	switch e.Kind {
	case apperr.KindForbidden, apperr.KindInvalidOperation:
		abortForbidden(c)
	case apperr.KindInternal:
		logger.Log.Error("Request failed",
			zap.Error(err),
			logger.WithRoute(c.FullPath()),
			logger.WithRequestID(c.GetString(ctxRequestID)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
			Error:   string(apperr.KindInternal),
			Message: "internal error",
		})
	default:
		c.AbortWithStatusJSON(e.Kind.StatusCode(), errorBody{
			Error:   string(e.Kind),
			Message: e.Message,
			Field:   e.Field,
		})
	}
}

func badBody(c *gin.Context) {
	respondError(c, apperr.Validation("body", "invalid request body"))
}

// pathID parses a positive numeric path parameter.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation(name, "invalid "+name))
		return 0, false
	}
	return uint(id), true
}

// Views strip author ids and mark ownership relative to the caller.

type postView struct {
	ID            uint      `json:"id"`
	Body          string    `json:"body"`
	FlagsCount    int       `json:"flags_count"`
	KindnessVotes int       `json:"kindness_votes"`
	IsMine        bool      `json:"is_mine"`
	CreatedAt     time.Time `json:"created_at"`
}

type feedItemView struct {
	Post  postView `json:"post"`
	Score float64  `json:"score"`
}

type replyView struct {
	ID            uint      `json:"id"`
	PostID        uint      `json:"post_id"`
	Body          string    `json:"body"`
	FlagsCount    int       `json:"flags_count"`
	KindnessVotes int       `json:"kindness_votes"`
	IsMine        bool      `json:"is_mine"`
	CreatedAt     time.Time `json:"created_at"`
}

type flagView struct {
	ID         uint       `json:"id"`
	TargetType string     `json:"target_type"`
	TargetID   uint       `json:"target_id"`
	Reason     string     `json:"reason"`
	Details    string     `json:"details,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

type conversationView struct {
	ID           uint      `json:"id"`
	OriginPostID uint      `json:"origin_post_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type messageView struct {
	ID         uint      `json:"id"`
	Body       string    `json:"body"`
	AuthorIsMe bool      `json:"author_is_me"`
	CreatedAt  time.Time `json:"created_at"`
}

type banView struct {
	Prefix    string    `json:"ip_prefix"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPostView(p *models.Post, viewer uint) postView {
	return postView{
		ID:            p.ID,
		Body:          p.Body,
		FlagsCount:    p.FlagsCount,
		KindnessVotes: p.KindnessVotes,
		IsMine:        viewer != 0 && p.AuthorID == viewer,
		CreatedAt:     p.CreatedAt,
	}
}

func newFeedViews(items []feed.Item) []feedItemView {
	out := make([]feedItemView, len(items))
	for i, it := range items {
		out[i] = feedItemView{
			Post: postView{
				ID:            it.Post.ID,
				Body:          it.Post.Body,
				FlagsCount:    it.Post.FlagsCount,
				KindnessVotes: it.Post.KindnessVotes,
				IsMine:        it.Mine,
				CreatedAt:     it.Post.CreatedAt,
			},
			Score: it.Score,
		}
	}
	return out
}

func newReplyView(r *models.Reply, mine bool) replyView {
	return replyView{
		ID:            r.ID,
		PostID:        r.PostID,
		Body:          r.Body,
		FlagsCount:    r.FlagsCount,
		KindnessVotes: r.KindnessVotes,
		IsMine:        mine,
		CreatedAt:     r.CreatedAt,
	}
}

func newFlagView(f *models.Flag) flagView {
	return flagView{
		ID:         f.ID,
		TargetType: f.TargetType,
		TargetID:   f.TargetID,
		Reason:     f.Reason,
		Details:    f.Details,
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		ReviewedAt: f.ReviewedAt,
	}
}

func newConversationViews(convs []models.Conversation) []conversationView {
	out := make([]conversationView, len(convs))
	for i, c := range convs {
		out[i] = conversationView{ID: c.ID, OriginPostID: c.OriginPostID, CreatedAt: c.CreatedAt}
	}
	return out
}

func newMessageView(m *models.Message, mine bool) messageView {
	return messageView{ID: m.ID, Body: m.Body, AuthorIsMe: mine, CreatedAt: m.CreatedAt}
}

func newMessageViews(msgs []dm.MessageView) []messageView {
	out := make([]messageView, len(msgs))
	for i := range msgs {
		out[i] = newMessageView(&msgs[i].Message, msgs[i].AuthorIsMe)
	}
	return out
}

func newBanView(b *models.IPBan) banView {
	return banView{
		Prefix:    b.Prefix,
		Reason:    b.Reason,
		Active:    b.Active,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
