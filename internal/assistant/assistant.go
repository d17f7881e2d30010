// Package assistant is the single entry point of the chat pipeline. It routes
// a message through link resolution, follow-up handling or planning, and
// always answers with a Response.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/deeplink"
	"github.com/ahmetk3436/ppmchat/internal/executor"
	"github.com/ahmetk3436/ppmchat/internal/intent"
	"github.com/ahmetk3436/ppmchat/internal/metrics"
	"github.com/ahmetk3436/ppmchat/internal/planner"
	"github.com/ahmetk3436/ppmchat/internal/schema"
	"github.com/ahmetk3436/ppmchat/internal/suggest"
)

var tracer = otel.Tracer("ppmchat.assistant")

// Response is what every chat message gets back.
type Response struct {
	Success     bool                 `json:"success"`
	Reply       string               `json:"reply"`
	ChartData   *executor.ChartData  `json:"chartData"`
	Suggestions []suggest.Suggestion `json:"suggestions,omitempty"`
	DeepLink    string               `json:"deepLink,omitempty"`
	Links       []deeplink.Link      `json:"links,omitempty"`
	Action      string               `json:"action,omitempty"`
	ObjectType  string               `json:"objectType,omitempty"`
	SessionID   string               `json:"sessionId"`
}

type Assistant struct {
	store   *conversation.Store
	schemas *schema.Cache
	planner *planner.Generator
	exec    *executor.Executor
	links   *deeplink.Builder
	intents *intent.Classifier
}

func New(store *conversation.Store, schemas *schema.Cache, gen *planner.Generator, exec *executor.Executor, links *deeplink.Builder) *Assistant {
	return &Assistant{
		store:   store,
		schemas: schemas,
		planner: gen,
		exec:    exec,
		links:   links,
		intents: intent.Default(),
	}
}

// SetPage records the PPM page the user is looking at.
func (a *Assistant) SetPage(sessionID string, page conversation.PageRef) {
	a.store.SetCurrentPage(sessionID, page)
}

// HandleMessage answers one chat message. It never panics; unexpected
// failures become failure responses.
func (a *Assistant) HandleMessage(ctx context.Context, message, sessionID string) (resp Response) {
	ctx, span := tracer.Start(ctx, "assistant.HandleMessage")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	start := time.Now()
	path := "plan"

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while handling message",
				"session_id", sessionID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			resp = a.failure(fmt.Errorf("internal error: %v", r), "")
		}
		resp.SessionID = sessionID

		status := "success"
		if !resp.Success {
			status = "failure"
		}
		metrics.MessagesTotal.WithLabelValues(path, status).Inc()

		ok := resp.Success
		a.store.AppendTurn(sessionID, conversation.Turn{
			Role:       conversation.RoleAssistant,
			Message:    resp.Reply,
			Action:     resp.Action,
			ObjectType: resp.ObjectType,
			Success:    &ok,
		})
		slog.Info("Message handled",
			"session_id", sessionID,
			"path", path,
			"action", resp.Action,
			"success", resp.Success,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	message = strings.TrimSpace(message)
	st := a.store.GetOrCreate(sessionID)
	a.store.AppendTurn(sessionID, conversation.Turn{Role: conversation.RoleUser, Message: message})

	if message == "" {
		return a.failure(errEmptyMessage, "")
	}

	if intent.IsLinkRequest(message) {
		path = "link"
		return a.resolveLink(ctx, message, st)
	}

	in := a.intents.Classify(message)
	span.SetAttributes(attribute.String("intent.type", string(in.Type)))
	if r, ok := a.followUp(ctx, sessionID, message, in, st); ok {
		path = "followup"
		return r
	}

	return a.runPlan(ctx, sessionID, message, st)
}

func (a *Assistant) runPlan(ctx context.Context, sessionID, message string, st conversation.State) Response {
	plan, err := a.planner.Generate(ctx, message, st)
	if err != nil {
		return a.failure(err, "")
	}

	res, err := a.exec.Execute(ctx, sessionID, plan)
	if err != nil {
		r := a.failure(err, plan.ObjectType)
		r.Action = string(plan.Action)
		return r
	}
	return a.success(ctx, sessionID, res)
}

// success turns an executor result into a response with a deep link and
// suggestions.
func (a *Assistant) success(ctx context.Context, sessionID string, res *executor.Result) Response {
	r := Response{
		Success:    true,
		Reply:      res.Reply,
		ChartData:  res.Chart,
		Action:     string(res.Action),
		ObjectType: res.ObjectType,
	}

	switch res.Action {
	case planner.ActionDescribe, planner.ActionHelp:
	case planner.ActionDelete:
		r.DeepLink = a.links.List(res.ObjectType, a.schemas.IsCustom(res.ObjectType))
	default:
		r.DeepLink = a.links.ForResult(res.ObjectType, res.RecordID, res.Filters)
	}

	r.Suggestions = a.suggestions(ctx, sessionID)
	return r
}

func (a *Assistant) suggestions(ctx context.Context, sessionID string) []suggest.Suggestion {
	st, ok := a.store.Get(sessionID)
	if !ok {
		return suggest.Generate(conversation.State{}, nil)
	}
	var groupable []schema.Attribute
	if st.LastQuery != nil {
		if entry, err := a.schemas.GetSchema(ctx, st.LastQuery.ObjectType); err == nil {
			groupable = schema.GroupableFields(entry)
		}
	}
	return suggest.Generate(st, groupable)
}
