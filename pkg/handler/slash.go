package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/slack-go/slack"
)

const attachmentFooter = "Slack Dify Bot"

// AskPendingText is the immediate ephemeral reply while a deferred ask runs
const AskPendingText = "Thinking about it, I'll post the answer here shortly."

// HandleSlashCommand builds the HTTP reply for a slash command. With
// AsyncSlash set the ask command returns AskPendingText at once and delivers
// its answer through the response_url; every other reply is inline.
func (h *EventHandler) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	if cmd.Command == h.opts.AskCommand && h.deferAsk(cmd) {
		h.logSlashCommand(ctx, cmd)
		bg := context.WithoutCancel(ctx)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer func() {
				if p := recover(); p != nil {
					logging.FromContext(bg, h.logger).Error("panic while answering slash command", "command", cmd.Command, "panic", p)
				}
			}()
			h.deliver(bg, cmd, h.handleAsk(bg, cmd))
		}()
		return &slack.Msg{
			ResponseType: slack.ResponseTypeEphemeral,
			Text:         AskPendingText,
		}
	}

	return h.AnswerSlashCommand(ctx, cmd)
}

// AnswerSlashCommand produces the final reply for a slash command, waiting on
// the AI backend when needed
func (h *EventHandler) AnswerSlashCommand(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	h.logSlashCommand(ctx, cmd)

	switch cmd.Command {
	case h.opts.AskCommand:
		return h.handleAsk(ctx, cmd)
	case h.opts.StatusCommand:
		return h.handleStatus(cmd)
	default:
		return &slack.Msg{
			ResponseType: slack.ResponseTypeEphemeral,
			Text:         fmt.Sprintf("Unknown command: %s", cmd.Command),
		}
	}
}

// DeliverSlashCommand answers cmd and posts the reply to its response_url.
// Transports that must acknowledge before the answer exists use it.
func (h *EventHandler) DeliverSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	h.deliver(ctx, cmd, h.AnswerSlashCommand(ctx, cmd))
}

func (h *EventHandler) deferAsk(cmd slack.SlashCommand) bool {
	return h.opts.AsyncSlash &&
		h.opts.Responder != nil &&
		cmd.ResponseURL != "" &&
		strings.TrimSpace(cmd.Text) != ""
}

func (h *EventHandler) deliver(ctx context.Context, cmd slack.SlashCommand, msg *slack.Msg) {
	if h.opts.Responder == nil {
		logging.FromContext(ctx, h.logger).Warn("no slash command responder configured, dropping reply", "command", cmd.Command)
		return
	}
	if err := h.opts.Responder.Respond(ctx, cmd.ResponseURL, msg); err != nil {
		logging.FromContext(ctx, h.logger).Error("failed to deliver slash command reply",
			"command", cmd.Command,
			"kind", apperr.KindOf(err),
			"error", err,
		)
	}
}

func (h *EventHandler) logSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	logging.FromContext(ctx, h.logger).Info("handling slash command",
		"command", cmd.Command,
		"user", cmd.UserID,
		"channel", cmd.ChannelID,
	)
}

func (h *EventHandler) handleAsk(ctx context.Context, cmd slack.SlashCommand) *slack.Msg {
	question := strings.TrimSpace(cmd.Text)
	if question == "" {
		return &slack.Msg{
			ResponseType: slack.ResponseTypeEphemeral,
			Text:         fmt.Sprintf("Usage: `%s <question>`", cmd.Command),
		}
	}

	reply, ok := h.answer(ctx, cmd.UserID, question)
	if !ok {
		return &slack.Msg{
			ResponseType: slack.ResponseTypeEphemeral,
			Text:         reply,
		}
	}

	return &slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         reply,
		Attachments: []slack.Attachment{
			h.commandAttachment(cmd, "", fmt.Sprintf("Question: %s", question)),
		},
	}
}

func (h *EventHandler) handleStatus(cmd slack.SlashCommand) *slack.Msg {
	text := fmt.Sprintf("🎉 Hello %s!\nYou typed: '%s'\nThis slash command is working.", displayName(cmd), cmd.Text)
	if h.opts.PublicURL != "" {
		text += "\nWeb UI: " + h.opts.PublicURL
	}

	return &slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         text,
		Attachments: []slack.Attachment{
			h.commandAttachment(cmd, "good", attachmentFooter),
		},
	}
}

func (h *EventHandler) commandAttachment(cmd slack.SlashCommand, color, title string) slack.Attachment {
	attachment := slack.Attachment{
		Color: color,
		Title: title,
		Fields: []slack.AttachmentField{
			{Title: "Command", Value: cmd.Command, Short: true},
			{Title: "User", Value: displayName(cmd), Short: true},
		},
		Footer: attachmentFooter,
		Ts:     json.Number(strconv.FormatInt(h.now().Unix(), 10)),
	}
	if h.opts.PublicURL != "" {
		attachment.TitleLink = h.opts.PublicURL
	}
	return attachment
}

func displayName(cmd slack.SlashCommand) string {
	if cmd.UserName != "" {
		return cmd.UserName
	}
	if cmd.UserID != "" {
		return "<@" + cmd.UserID + ">"
	}
	return "there"
}
