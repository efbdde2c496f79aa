package mcp

// In this file: messaging tool definitions and handlers.

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/lakebridge/lakebridge/internal/classify"
)

// errNoChatBackend is returned by messaging tool handlers when the
// messaging service is not configured.
var errNoChatBackend = classify.New(classify.KindConfiguration,
	"the messaging service is not configured; set SLACK_BOT_TOKEN")

// ─── messages_list_channels ───────────────────────────────────────────────────

func (s *Server) toolMessagesListChannels() mcpsrv.ServerTool {
	tool := mcplib.NewTool("messages_list_channels",
		mcplib.WithDescription(`List accessible Slack channels.

Returns the channels the bot has access to.  If a channel allowlist is
configured, only those channels are returned.  Use this to discover
available channels before reading or sending messages.`),
		mcplib.WithBoolean("include_private",
			mcplib.Description("Include private channels the bot is a member of (default: false)."),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of channels to return (default: 200)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMessagesListChannels}
}

func (s *Server) handleMessagesListChannels(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.msg == nil {
		return resultErr(errNoChatBackend), nil
	}

	includePrivate := boolArg(req, "include_private", false)
	limit := intArg(req, "limit", 0)

	channels, err := s.msg.ListChannels(ctx, includePrivate, limit)
	if err != nil {
		return resultErr(err), nil
	}
	if len(channels) == 0 {
		return resultText("No accessible channels found."), nil
	}
	result, err := resultJSON(channels)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "messages_list_channels: serialise", err)), nil
	}
	return result, nil
}

// ─── messages_read ────────────────────────────────────────────────────────────

func (s *Server) toolMessagesRead() mcpsrv.ServerTool {
	tool := mcplib.NewTool("messages_read",
		mcplib.WithDescription(`Read recent messages from a Slack channel.

Messages are returned oldest first, with resolved author names and both a
human-readable timestamp and the raw service timestamp (ts).  Only channels
the bot has been added to — and that are in the allowlist, if one is
configured — can be read.`),
		mcplib.WithString("channel",
			mcplib.Description("Channel ID (e.g. \"C0123456789\") or name (e.g. \"general\")."),
			mcplib.Required(),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Number of messages to retrieve (default: 20)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMessagesRead}
}

func (s *Server) handleMessagesRead(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.msg == nil {
		return resultErr(errNoChatBackend), nil
	}

	channel, ok := stringArg(req, "channel")
	if !ok || channel == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "messages_read: channel is required")), nil
	}
	limit := intArg(req, "limit", 0)

	msgs, err := s.msg.ReadMessages(ctx, channel, limit)
	if err != nil {
		return resultErr(err), nil
	}
	if len(msgs) == 0 {
		return resultText(fmt.Sprintf("No messages found in %q.", channel)), nil
	}
	result, err := resultJSON(msgs)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "messages_read: serialise", err)), nil
	}
	return result, nil
}

// ─── messages_send ────────────────────────────────────────────────────────────

func (s *Server) toolMessagesSend() mcpsrv.ServerTool {
	tool := mcplib.NewTool("messages_send",
		mcplib.WithDescription(`Send a message to a Slack channel.

Posts the text to the channel as the bot user.  Supports basic Slack
formatting (bold, italic, links).  Exactly one delivery attempt is made; on
failure nothing was sent.  Only channels in the allowlist (if configured)
can be posted to.`),
		mcplib.WithString("channel",
			mcplib.Description("Channel ID (e.g. \"C0123456789\") or name (e.g. \"general\")."),
			mcplib.Required(),
		),
		mcplib.WithString("text",
			mcplib.Description("The message text to send."),
			mcplib.Required(),
		),
		mcplib.WithString("thread_ts",
			mcplib.Description("Optional: timestamp of a parent message to reply in its thread."),
		),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMessagesSend}
}

func (s *Server) handleMessagesSend(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.msg == nil {
		return resultErr(errNoChatBackend), nil
	}

	channel, ok := stringArg(req, "channel")
	if !ok || channel == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "messages_send: channel is required")), nil
	}
	text, ok := stringArg(req, "text")
	if !ok || text == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "messages_send: text is required")), nil
	}
	threadTS, _ := stringArg(req, "thread_ts")

	delivery, err := s.msg.SendMessage(ctx, channel, text, threadTS)
	if err != nil {
		return resultErr(err), nil
	}
	result, err := resultJSON(delivery)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "messages_send: serialise", err)), nil
	}
	return result, nil
}

// ─── messages_delete ──────────────────────────────────────────────────────────

func (s *Server) toolMessagesDelete() mcpsrv.ServerTool {
	tool := mcplib.NewTool("messages_delete",
		mcplib.WithDescription(`Delete a message from a Slack channel.

Deletes a message by its timestamp (use messages_read to find the ts
value).  The bot can only delete messages it sent, unless it has admin
permissions.`),
		mcplib.WithString("channel",
			mcplib.Description("Channel ID (e.g. \"C0123456789\") or name (e.g. \"general\")."),
			mcplib.Required(),
		),
		mcplib.WithString("ts",
			mcplib.Description("The timestamp of the message to delete."),
			mcplib.Required(),
		),
		mcplib.WithDestructiveHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMessagesDelete}
}

func (s *Server) handleMessagesDelete(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.msg == nil {
		return resultErr(errNoChatBackend), nil
	}

	channel, ok := stringArg(req, "channel")
	if !ok || channel == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "messages_delete: channel is required")), nil
	}
	ts, ok := stringArg(req, "ts")
	if !ok || ts == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "messages_delete: ts is required")), nil
	}

	delivery, err := s.msg.DeleteMessage(ctx, channel, ts)
	if err != nil {
		return resultErr(err), nil
	}
	result, err := resultJSON(delivery)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "messages_delete: serialise", err)), nil
	}
	return result, nil
}
