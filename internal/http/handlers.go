package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/entrenous/internal/admin"
	"github.com/sujalbistaa/entrenous/internal/audit"
	"github.com/sujalbistaa/entrenous/internal/auth"
	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/content"
	"github.com/sujalbistaa/entrenous/internal/dm"
	"github.com/sujalbistaa/entrenous/internal/feed"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/metrics"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/moderation"
	"github.com/sujalbistaa/entrenous/internal/ws"
)

// Admin event types published by handlers directly.
const (
	EventBan   = "ban"
	EventUnban = "unban"
)

// --- Structs for request binding ---

type credentialsInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type bodyInput struct {
	Body string `json:"body"`
}

type flagInput struct {
	TargetType string `json:"target_type" binding:"required"`
	TargetID   uint   `json:"target_id" binding:"required"`
	Reason     string `json:"reason"`
	Details    string `json:"details"`
}

type startConversationInput struct {
	PostID uint `json:"post_id" binding:"required"`
}

type reviewInput struct {
	Decision string `json:"decision" binding:"required"`
}

// Env carries the services every handler needs.
type Env struct {
	Auth       *auth.Service
	Feed       *feed.Engine
	Content    *content.Service
	Moderation *moderation.Pipeline
	DM         *dm.Manager
	Bans       *banguard.Guard
	Audit      *audit.Recorder
	Admin      *admin.Aggregator
	Metrics    *metrics.Metrics
	Hub        *ws.Hub
	Events     moderation.Notifier
}

func (e *Env) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// recordSession audits a completed action. A failed write is logged and does
// not fail the request.
func (e *Env) recordSession(c *gin.Context, userID uint, action string) {
	if err := e.Audit.Record(c.Request.Context(), userID, action, c.ClientIP()); err != nil {
		logger.Log.Warn("Failed to record session event",
			logger.WithUserID(userID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// --- Auth ---

func (e *Env) Register(c *gin.Context) {
	var input credentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	user, err := e.Auth.Register(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, user.ID, models.ActionRegister)
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

func (e *Env) Login(c *gin.Context) {
	var input credentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	tok, err := e.Auth.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, tok.UserID, models.ActionLogin)
	c.JSON(http.StatusOK, tok)
}

func (e *Env) ChangePassword(c *gin.Context) {
	var input changePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	if err := e.Auth.ChangePassword(c.Request.Context(), callerID(c), input.CurrentPassword, input.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- Feed and content ---

func (e *Env) GetFeed(c *gin.Context) {
	items, err := e.Feed.GetFeed(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFeedViews(items))
}

func (e *Env) CreatePost(c *gin.Context) {
	var input bodyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	viewer := callerID(c)
	post, err := e.Content.CreatePost(c.Request.Context(), viewer, input.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, viewer, models.ActionPost)
	c.JSON(http.StatusCreated, newPostView(post, viewer))
}

func (e *Env) GetReplies(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := e.Feed.GetReplies(c.Request.Context(), callerID(c), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]replyView, len(items))
	for i := range items {
		out[i] = newReplyView(&items[i].Reply, items[i].Mine)
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) CreateReply(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input bodyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	reply, err := e.Content.CreateReply(c.Request.Context(), callerID(c), postID, input.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, callerID(c), models.ActionReply)
	c.JSON(http.StatusCreated, newReplyView(reply, true))
}

// Vote returns a handler recording a kindness vote on targetType.
func (e *Env) Vote(targetType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		total, err := e.Content.Vote(c.Request.Context(), callerID(c), targetType, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"target_type": targetType, "target_id": id, "kindness_votes": total})
	}
}

// --- Moderation ---

func (e *Env) SubmitFlag(c *gin.Context) {
	var input flagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	res, err := e.Moderation.SubmitFlag(c.Request.Context(), callerID(c), moderation.FlagInput{
		TargetType: input.TargetType,
		TargetID:   input.TargetID,
		Reason:     input.Reason,
		Details:    input.Details,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		e.recordSession(c, callerID(c), models.ActionFlag)
	}
	c.JSON(status, newFlagView(res.Flag))
}

func (e *Env) ModerationQueue(c *gin.Context) {
	flags, err := e.Moderation.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]flagView, len(flags))
	for i := range flags {
		out[i] = newFlagView(&flags[i])
	}
	c.JSON(http.StatusOK, out)
}

func (e *Env) ReviewFlag(c *gin.Context) {
	flagID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input reviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	res, err := e.Moderation.Review(c.Request.Context(), flagID, input.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decision":      res.Decision,
		"target_type":   res.TargetType,
		"target_id":     res.TargetID,
		"flags_closed":  res.FlagsClosed,
		"flags_count":   res.FlagsCount,
		"target_hidden": res.TargetHidden,
	})
}

func (e *Env) BanIP(c *gin.Context) {
	ban, err := e.Bans.Ban(c.Request.Context(), c.Query("ip"), c.Query("reason"))
	if err != nil {
		respondError(c, err)
		return
	}
	e.Events.Publish(EventBan, map[string]any{"ip_prefix": ban.Prefix})
	c.JSON(http.StatusOK, newBanView(ban))
}

func (e *Env) LiftBan(c *gin.Context) {
	ban, err := e.Bans.Lift(c.Request.Context(), c.Query("ip"))
	if err != nil {
		respondError(c, err)
		return
	}
	e.Events.Publish(EventUnban, map[string]any{"ip_prefix": ban.Prefix})
	c.JSON(http.StatusOK, newBanView(ban))
}

func (e *Env) ListBans(c *gin.Context) {
	bans, err := e.Bans.List(c.Request.Context(), 200)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]banView, len(bans))
	for i := range bans {
		out[i] = newBanView(&bans[i])
	}
	c.JSON(http.StatusOK, out)
}

// --- Conversations ---

func (e *Env) StartConversation(c *gin.Context) {
	var input startConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	conv, err := e.DM.StartFromPost(c.Request.Context(), callerID(c), input.PostID)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, callerID(c), models.ActionDM)
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

func (e *Env) ListConversations(c *gin.Context) {
	convs, err := e.DM.List(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newConversationViews(convs))
}

func (e *Env) GetMessages(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgs, err := e.DM.Messages(c.Request.Context(), convID, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMessageViews(msgs))
}

func (e *Env) SendMessage(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var input bodyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badBody(c)
		return
	}
	msg, err := e.DM.Send(c.Request.Context(), convID, callerID(c), input.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	e.recordSession(c, callerID(c), models.ActionDM)
	c.JSON(http.StatusCreated, newMessageView(msg, true))
}

// --- Admin ---

func (e *Env) Overview(c *gin.Context) {
	snap, err := e.Admin.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ContentInfo returns moderation metadata for any post or reply, hidden or
// not. The body is never included.
func (e *Env) ContentInfo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := e.Moderation.TargetInfo(c.Request.Context(), c.Param("type"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"target_type":    t.Type,
		"id":             t.ID,
		"post_id":        t.PostID,
		"hidden":         t.Hidden,
		"flags_count":    t.FlagsCount,
		"kindness_votes": t.KindnessVotes,
		"created_at":     t.CreatedAt,
	})
}

func (e *Env) PrometheusMetrics(c *gin.Context) {
	e.Metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

func (e *Env) AdminStream(c *gin.Context) {
	e.Hub.ServeWs(c.Writer, c.Request)
}

// EventSink fans moderation events out to the admin stream and counts them.
type EventSink struct {
	Hub     *ws.Hub
	Metrics *metrics.Metrics
}

func (s EventSink) Publish(eventType string, data any) {
	if s.Metrics != nil {
		if fields, ok := data.(map[string]any); ok {
			targetType, _ := fields["target_type"].(string)
			switch eventType {
			case moderation.EventFlag:
				source := "user"
				if fields["reason"] == moderation.ReasonKeywordHit {
					source = "system"
				}
				s.Metrics.FlagsTotal.WithLabelValues(targetType, source).Inc()
			case moderation.EventAutoHide:
				s.Metrics.AutoHiddenTotal.WithLabelValues(targetType).Inc()
			}
		}
	}
	s.Hub.Publish(eventType, data)
}

var _ moderation.Notifier = EventSink{}
