package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"courier.chat/relay/common/id"
	"courier.chat/relay/common/logger"
	"courier.chat/relay/core/config"
	"courier.chat/relay/core/db"
	"courier.chat/relay/internal/blob"
	"courier.chat/relay/internal/cache"
	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/provider"
	"courier.chat/relay/internal/ratelimit"
	"courier.chat/relay/internal/session"
	"courier.chat/relay/internal/store"
	"courier.chat/relay/internal/stream"
)

// Orchestrator runs the turn state machine: validate, rate-limit, resolve
// the conversation and session, build context, dispatch to the provider
// adapter, and tee the stream into the live response and the persistence
// path.
type Orchestrator struct {
	cfg       config.Config
	stores    *store.Stores
	sessions  *session.Store
	registry  *provider.Registry
	limiter   *ratelimit.Limiter
	cache     *cache.ConversationCache
	blobs     blob.Store
	persister *Persister
}

func NewOrchestrator(
	cfg config.Config,
	database *db.DB,
	sessions *session.Store,
	registry *provider.Registry,
	limiter *ratelimit.Limiter,
	convCache *cache.ConversationCache,
	blobs blob.Store,
	persister *Persister,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		stores:    store.NewStores(database.Pool()),
		sessions:  sessions,
		registry:  registry,
		limiter:   limiter,
		cache:     convCache,
		blobs:     blobs,
		persister: persister,
	}
}

// Turn is a dispatched turn: the client-facing stream branch plus the
// diagnostics the handler reports in response headers.
type Turn struct {
	Conversation    *model.Conversation
	Client          *stream.Branch
	SummaryInjected bool
	ContextMessages int
}

// StartTurn validates and dispatches one turn. On success the upstream
// stream is already running: the caller consumes Turn.Client while the
// persistence branch drains on a detached goroutine that outlives the
// response. A client abort never cancels the upstream call or persistence.
func (o *Orchestrator) StartTurn(ctx context.Context, req TurnRequest) (*Turn, *TurnError) {
	adapter, _ := o.registry.Get(req.Provider)
	if terr := validateTurn(req, o.cfg.Limits, adapter); terr != nil {
		return nil, terr
	}

	if !o.limiter.AllowTurn(ctx, req.UserID) {
		return nil, reject(http.StatusTooManyRequests, "Too many turns, slow down")
	}
	if !o.limiter.AllowModel(ctx, req.UserID, req.Model) {
		return nil, reject(http.StatusTooManyRequests, "Daily quota for model %q exhausted", req.Model)
	}

	conv, terr := o.resolveConversation(ctx, req)
	if terr != nil {
		return nil, terr
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: logger.Ptr(conv.ID),
		Provider:       logger.Ptr(req.Provider),
		Model:          logger.Ptr(req.Model),
	})

	state, err := o.sessions.GetOrBootstrap(ctx, conv)
	if err != nil {
		slog.ErrorContext(ctx, "session resolution failed", "error", err)
		return nil, reject(http.StatusInternalServerError, "Failed to resolve session state")
	}

	attachments, terr := o.storeAttachments(ctx, conv, req)
	if terr != nil {
		return nil, terr
	}

	built := BuildContext(
		req.contextMessages(),
		deref(state.Summary),
		derefInt(state.SummaryMessageCount),
		o.cfg.Limits.TokenBudget,
		o.cfg.Limits.MinKeepMessages,
		req.MessagesTrimmed,
	)

	promptChars := 0
	for _, m := range built.Messages {
		promptChars += len(m.Content)
	}

	tee, clientBranch, persistBranch := stream.NewTee()
	start := time.Now()

	// The upstream call and persistence both survive a client disconnect.
	detached := context.WithoutCancel(ctx)

	go o.runUpstream(detached, adapter, provider.Request{
		Model:    req.Model,
		Messages: built.Messages,
		Options:  req.options(state),
	}, tee, start)

	go func() {
		in := persistInput{
			conv:        conv,
			userText:    req.Messages[len(req.Messages)-1].Content,
			attachments: attachments,
			provider:    req.Provider,
			model:       req.Model,
			promptChars: promptChars,
			traceID:     logger.TraceID(detached),
		}
		if err := o.persister.PersistTurn(detached, persistBranch, in); err != nil {
			slog.ErrorContext(detached, "turn persistence failed", "error", err)
		}
	}()

	return &Turn{
		Conversation:    conv,
		Client:          clientBranch,
		SummaryInjected: built.SummaryInjected,
		ContextMessages: len(built.Messages),
	}, nil
}

// runUpstream drives the adapter and publishes into the tee. The first delta
// or reasoning event is preceded by exactly one synthetic meta event carrying
// elapsed time to first token. An upstream failure becomes a single terminal
// in-band error event.
func (o *Orchestrator) runUpstream(ctx context.Context, adapter provider.Adapter, req provider.Request, tee *stream.Tee, start time.Time) {
	metaSent := false
	emit := func(ev stream.Event) error {
		if !metaSent && (ev.Type == stream.TypeDelta || ev.Type == stream.TypeReasoning) {
			metaSent = true
			tee.Publish(stream.Event{Type: stream.TypeMeta, Meta: &stream.Meta{
				FirstByteMs: time.Since(start).Milliseconds(),
			}})
		}
		tee.Publish(ev)
		return nil
	}

	err := adapter.Stream(ctx, req, emit)
	if err != nil {
		slog.ErrorContext(ctx, "upstream stream failed", "provider", adapter.Name(), "error", err)
		tee.Publish(stream.Error(err.Error()))
	}
	tee.Close(err)
}

// resolveConversation loads the conversation and checks ownership, creating
// it lazily on a first turn.
func (o *Orchestrator) resolveConversation(ctx context.Context, req TurnRequest) (*model.Conversation, *TurnError) {
	if req.ConversationID == 0 {
		conv := &model.Conversation{
			ID:        id.New(),
			UserID:    req.UserID,
			ProjectID: req.ProjectID,
			Title:     model.PlaceholderTitle,
			Provider:  req.Provider,
			Model:     req.Model,
		}
		if err := o.stores.Conversations().Create(ctx, conv); err != nil {
			slog.ErrorContext(ctx, "conversation create failed", "error", err)
			return nil, reject(http.StatusInternalServerError, "Failed to create conversation")
		}
		o.cache.Invalidate(ctx, req.UserID, req.ProjectID)
		return conv, nil
	}

	conv, err := o.stores.Conversations().GetByID(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(http.StatusNotFound, "Conversation not found")
		}
		slog.ErrorContext(ctx, "conversation lookup failed", "error", err)
		return nil, reject(http.StatusInternalServerError, "Failed to load conversation")
	}
	if conv.UserID != req.UserID {
		return nil, reject(http.StatusForbidden, "Conversation belongs to another user")
	}
	return conv, nil
}

// storeAttachments uploads inline attachments from the final user message
// and returns their recorded metadata.
func (o *Orchestrator) storeAttachments(ctx context.Context, conv *model.Conversation, req TurnRequest) ([]model.Attachment, *TurnError) {
	last := req.Messages[len(req.Messages)-1]
	if len(last.Attachments) == 0 {
		return nil, nil
	}
	if o.blobs == nil {
		return nil, reject(http.StatusBadRequest, "Attachment storage is not configured")
	}

	out := make([]model.Attachment, 0, len(last.Attachments))
	for i, a := range last.Attachments {
		key := fmt.Sprintf("conversations/%d/%s/%d-%s", conv.ID, req.UserMessageID, i, a.Name)
		if err := o.blobs.Put(ctx, key, a.ContentType, a.Data); err != nil {
			slog.ErrorContext(ctx, "attachment upload failed", "key", key, "error", err)
			return nil, reject(http.StatusInternalServerError, "Failed to store attachment %q", a.Name)
		}
		out = append(out, model.Attachment{
			Key:         key,
			Name:        a.Name,
			ContentType: a.ContentType,
			SizeBytes:   int64(len(a.Data)),
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
