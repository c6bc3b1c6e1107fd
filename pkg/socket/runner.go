package socket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// EventSink receives events arriving over the socket. handler.EventHandler
// satisfies it. DeliverSlashCommand posts its reply to the command's
// response_url because the envelope is acknowledged before it runs.
type EventSink interface {
	HandleEvent(ctx context.Context, event models.SlackEventBody)
	DeliverSlashCommand(ctx context.Context, cmd slack.SlashCommand)
}

// AckFunc acknowledges a socket mode envelope, optionally with a payload
type AckFunc func(req socketmode.Request, payload ...interface{})

// Runner receives Slack events over Socket Mode instead of the public webhook
type Runner struct {
	client *socketmode.Client
	sink   EventSink
	logger *slog.Logger

	// in-flight handlers
	wg sync.WaitGroup
}

// NewRunner creates a runner. api must carry an app-level token.
func NewRunner(api *slack.Client, sink EventSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client: socketmode.New(api),
		sink:   sink,
		logger: logger,
	}
}

// Run connects and dispatches events until ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for {
			select {
			case <-loopCtx.Done():
				return
			case evt, ok := <-r.client.Events:
				if !ok {
					return
				}
				r.dispatch(loopCtx, evt, r.client.Ack)
			}
		}
	}()

	// no dispatch may start once the handlers are being waited on
	defer func() {
		stopLoop()
		<-loopDone
		r.wg.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.client.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("socket mode disconnecting")
		return nil
	case err := <-errCh:
		if err == nil || ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

// goHandle runs fn off the event loop so one slow reply never holds up the
// next envelope. The handler outlives ctx cancellation to finish its reply.
func (r *Runner) goHandle(ctx context.Context, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(ctx, r.logger).Error("socket handler panic", "panic", fmt.Sprint(rec))
			}
		}()
		fn(context.WithoutCancel(ctx))
	}()
}

func (r *Runner) dispatch(ctx context.Context, evt socketmode.Event, ack AckFunc) {
	ctx = logging.WithRequestID(ctx, logging.NewRequestID())
	logger := logging.FromContext(ctx, r.logger)

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.Info("connecting to slack with socket mode")

	case socketmode.EventTypeConnectionError:
		logger.Warn("socket mode connection failed, retrying")

	case socketmode.EventTypeConnected:
		logger.Info("connected to slack with socket mode")

	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			logger.Warn("ignoring unexpected events api payload", "data", fmt.Sprintf("%T", evt.Data))
			return
		}
		if evt.Request != nil {
			ack(*evt.Request)
		}
		if eventsAPIEvent.Type != slackevents.CallbackEvent {
			return
		}
		if event, ok := toEventBody(eventsAPIEvent.InnerEvent); ok {
			r.goHandle(ctx, func(ctx context.Context) {
				r.sink.HandleEvent(ctx, event)
			})
		}

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			logger.Warn("ignoring unexpected slash command payload", "data", fmt.Sprintf("%T", evt.Data))
			return
		}
		if evt.Request != nil {
			ack(*evt.Request)
		}
		r.goHandle(ctx, func(ctx context.Context) {
			r.sink.DeliverSlashCommand(ctx, cmd)
		})

	default:
		if evt.Request != nil {
			ack(*evt.Request)
		}
	}
}

// toEventBody converts the typed inner events the bot handles into the same
// shape the webhook path decodes
func toEventBody(inner slackevents.EventsAPIInnerEvent) (models.SlackEventBody, bool) {
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if ev == nil {
			return models.SlackEventBody{}, false
		}
		return models.SlackEventBody{
			Type:     models.EventMessage,
			User:     ev.User,
			Text:     ev.Text,
			Channel:  ev.Channel,
			BotID:    ev.BotID,
			SubType:  ev.SubType,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}, true

	case *slackevents.AppMentionEvent:
		if ev == nil {
			return models.SlackEventBody{}, false
		}
		return models.SlackEventBody{
			Type:     models.EventAppMention,
			User:     ev.User,
			Text:     ev.Text,
			Channel:  ev.Channel,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}, true

	default:
		return models.SlackEventBody{Type: inner.Type}, true
	}
}
