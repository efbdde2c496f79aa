// Package chat wraps the Slack messaging primitives used by the tool layer:
// channel listing, message reading and message sending.  Every operation is
// gated by the resolver's channel allowlist before any remote call is made.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rusq/slack"
	"golang.org/x/time/rate"

	"github.com/lakebridge/lakebridge/internal/classify"
	"github.com/lakebridge/lakebridge/internal/network"
	"github.com/lakebridge/lakebridge/internal/resolver"
)

// Slack is the subset of the Slack Web API used by this package.  The
// interface exists so handlers can be tested with a fake client.
type Slack interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
}

const (
	defReadLimit = 20
	// listPageSize is the conversations.list batch size.
	listPageSize = 200
	// readAttempts allows one retry of a transient failure on reads.  Writes
	// are never retried: a duplicate message is worse than a failed one.
	readAttempts = 2
)

// Service implements the messaging operations.
type Service struct {
	cl  Slack
	res *resolver.Resolver
	lim *rate.Limiter
	lg  *slog.Logger
}

// New creates a messaging Service.  lg may be nil.
func New(cl Slack, res *resolver.Resolver, lg *slog.Logger) *Service {
	if lg == nil {
		lg = slog.Default()
	}
	return &Service{
		cl:  cl,
		res: res,
		lim: rate.NewLimiter(rate.Every(1200*time.Millisecond), 3), // Slack Tier 3 pace
		lg:  lg,
	}
}

// Identity verifies the bot token and returns the authenticated identity.
// Used at startup to log which workspace and bot user the server acts as.
func (s *Service) Identity(ctx context.Context) (*slack.AuthTestResponse, error) {
	resp, err := s.cl.AuthTestContext(ctx)
	if err != nil {
		return nil, classifySlack("auth test", err)
	}
	return resp, nil
}

// ChannelSummary is one entry of a channel listing.
type ChannelSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private,omitempty"`
	IsMember   bool   `json:"is_member,omitempty"`
	NumMembers int    `json:"num_members,omitempty"`
}

// ListChannels lists the channels the bot can access, filtered by the
// allowlist.  includePrivate adds private channels the bot is a member of.
func (s *Service) ListChannels(ctx context.Context, includePrivate bool, limit int) ([]ChannelSummary, error) {
	types := []string{"public_channel"}
	if includePrivate {
		types = append(types, "private_channel")
	}
	if limit <= 0 {
		limit = listPageSize
	}

	var out []ChannelSummary
	err := network.WithRetry(ctx, s.lim, readAttempts, func() error {
		out = out[:0]
		params := &slack.GetConversationsParameters{
			Types:           types,
			Limit:           listPageSize,
			ExcludeArchived: true,
		}
		for {
			channels, nextCursor, err := s.cl.GetConversationsContext(ctx, params)
			if err != nil {
				return classifySlack("list channels", err)
			}
			for _, ch := range channels {
				if !s.res.AllowChannel(ch.ID, ch.Name) {
					continue
				}
				out = append(out, ChannelSummary{
					ID:         ch.ID,
					Name:       ch.Name,
					IsPrivate:  ch.IsPrivate,
					IsMember:   ch.IsMember,
					NumMembers: ch.NumMembers,
				})
				if len(out) >= limit {
					return nil
				}
			}
			if nextCursor == "" {
				return nil
			}
			params.Cursor = nextCursor
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Message is one message of a channel history.
type Message struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`          // human readable, UTC
	TS        string `json:"ts"`                 // raw service timestamp
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// ReadMessages returns up to limit recent messages of the channel in
// chronological order.  The channel reference may be an ID or a name.
func (s *Service) ReadMessages(ctx context.Context, ref string, limit int) ([]Message, error) {
	if err := s.res.CheckChannel(ref); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defReadLimit
	}
	if maxMsg := s.res.Config().MaxMessages; limit > maxMsg {
		limit = maxMsg
	}

	channelID, err := s.resolveChannelID(ctx, ref)
	if err != nil {
		return nil, err
	}

	var resp *slack.GetConversationHistoryResponse
	err = network.WithRetry(ctx, s.lim, readAttempts, func() error {
		var err error
		resp, err = s.cl.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     limit,
		})
		if err != nil {
			return classifySlack("read messages", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The history is returned newest first; flip it for natural reading and
	// resolve author display names, caching user lookups per call.
	users := map[string]string{}
	msgs := make([]Message, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		msgs = append(msgs, Message{
			Author:    s.authorName(ctx, &m, users),
			Text:      m.Text,
			Timestamp: fmtTimestamp(m.Timestamp),
			TS:        m.Timestamp,
			ThreadTS:  m.ThreadTimestamp,
		})
	}
	return msgs, nil
}

// Delivery reports the outcome of a send.
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Channel   string `json:"channel"`
	Timestamp string `json:"ts,omitempty"`
}

// SendMessage posts text to the channel.  threadTS, when non-empty, makes
// the message a thread reply.  Exactly one attempt is made.
func (s *Service) SendMessage(ctx context.Context, ref, text, threadTS string) (Delivery, error) {
	if err := s.res.CheckChannel(ref); err != nil {
		return Delivery{}, err
	}
	if text == "" {
		return Delivery{}, classify.New(classify.KindInvalidArgument, "message text must not be empty")
	}

	channelID, err := s.resolveChannelID(ctx, ref)
	if err != nil {
		return Delivery{}, err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	if err := s.lim.Wait(ctx); err != nil {
		return Delivery{}, classifySlack("send message", err)
	}
	_, ts, err := s.cl.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return Delivery{}, classifySlack("send message", err)
	}
	s.lg.InfoContext(ctx, "message sent", "channel", channelID, "ts", ts)
	return Delivery{Delivered: true, Channel: channelID, Timestamp: ts}, nil
}

// DeleteMessage deletes the message with the given timestamp from the
// channel.  Like sends, deletes get exactly one attempt.
func (s *Service) DeleteMessage(ctx context.Context, ref, ts string) (Delivery, error) {
	if err := s.res.CheckChannel(ref); err != nil {
		return Delivery{}, err
	}
	if ts == "" {
		return Delivery{}, classify.New(classify.KindInvalidArgument, "message timestamp must not be empty")
	}

	channelID, err := s.resolveChannelID(ctx, ref)
	if err != nil {
		return Delivery{}, err
	}

	if err := s.lim.Wait(ctx); err != nil {
		return Delivery{}, classifySlack("delete message", err)
	}
	if _, _, err := s.cl.DeleteMessageContext(ctx, channelID, ts); err != nil {
		return Delivery{}, classifySlack("delete message", err)
	}
	s.lg.InfoContext(ctx, "message deleted", "channel", channelID, "ts", ts)
	return Delivery{Delivered: true, Channel: channelID, Timestamp: ts}, nil
}

// resolveChannelID resolves a channel reference to its ID.  References that
// already look like IDs pass through unchanged; names are looked up via a
// paginated channel listing.
func (s *Service) resolveChannelID(ctx context.Context, ref string) (string, error) {
	if looksLikeID(ref) {
		return ref, nil
	}
	name := strings.TrimPrefix(ref, "#")

	var id string
	err := network.WithRetry(ctx, s.lim, readAttempts, func() error {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			Limit:           listPageSize,
			ExcludeArchived: true,
		}
		for {
			channels, nextCursor, err := s.cl.GetConversationsContext(ctx, params)
			if err != nil {
				return classifySlack("resolve channel", err)
			}
			for _, ch := range channels {
				if ch.Name == name {
					id = ch.ID
					return nil
				}
			}
			if nextCursor == "" {
				return classify.Errorf(classify.KindNotFound,
					"channel %q not found; use the channel ID or its exact name", ref)
			}
			params.Cursor = nextCursor
		}
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// looksLikeID reports whether ref has the shape of a conversation ID
// (channel, group or DM).
func looksLikeID(ref string) bool {
	if len(ref) < 9 {
		return false
	}
	switch ref[0] {
	case 'C', 'G', 'D':
	default:
		return false
	}
	for _, r := range ref[1:] {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// authorName returns the display name for a message author, looking users up
// at most once per call.  Lookup failures degrade to the raw user ID.
func (s *Service) authorName(ctx context.Context, m *slack.Message, cache map[string]string) string {
	if m.BotID != "" {
		if m.Username != "" {
			return m.Username
		}
		return "Bot"
	}
	if m.User == "" {
		return "Unknown"
	}
	if name, ok := cache[m.User]; ok {
		return name
	}
	name := m.User
	if u, err := s.cl.GetUserInfoContext(ctx, m.User); err == nil {
		switch {
		case u.Profile.DisplayName != "":
			name = u.Profile.DisplayName
		case u.RealName != "":
			name = u.RealName
		case u.Name != "":
			name = u.Name
		}
	}
	cache[m.User] = name
	return name
}

// fmtTimestamp converts a service timestamp ("1609459200.000001") to a
// human-readable UTC time.  Unparseable values are returned as-is.
func fmtTimestamp(ts string) string {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(n, 0).UTC().Format("2006-01-02 15:04:05")
}

// classifySlack maps an error from the Slack API to the error taxonomy.  The
// Slack API reports failures as short stable error codes, which are safe to
// surface; anything else is hidden behind the classified message.
func classifySlack(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return classify.Wrap(classify.KindCancelled, op+": cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return classify.Wrap(classify.KindTimeout, op+": deadline exceeded", err)
	}

	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return classify.Wrap(classify.KindExhausted, op+": rate limited", err)
	}
	var sce slack.StatusCodeError
	if errors.As(err, &sce) {
		switch {
		case sce.Code == 401 || sce.Code == 403:
			return classify.Wrap(classify.KindUnauthenticated, op+": authentication rejected", err)
		case sce.Code == 408 || (sce.Code >= 500 && sce.Code <= 599):
			return classify.Wrap(classify.KindUnavailable, op+": service unavailable", err)
		}
		return classify.Wrap(classify.KindUnknown, op+": unexpected status "+strconv.Itoa(sce.Code), err)
	}

	switch code := err.Error(); code {
	case "channel_not_found", "user_not_found", "thread_not_found", "message_not_found":
		return classify.Wrap(classify.KindNotFound, op+": "+code, err)
	case "not_in_channel", "not_in_group", "missing_scope", "restricted_action",
		"access_denied", "ekm_access_denied", "cant_delete_message", "is_archived":
		return classify.Wrap(classify.KindPermissionDenied, op+": "+code, err)
	case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
		return classify.Wrap(classify.KindUnauthenticated, op+": "+code, err)
	case "ratelimited", "rate_limited":
		return classify.Wrap(classify.KindExhausted, op+": "+code, err)
	case "msg_too_long", "no_text", "invalid_ts_latest", "invalid_ts_oldest":
		return classify.Wrap(classify.KindInvalidArgument, op+": "+code, err)
	}
	return classify.Wrap(classify.KindUnknown, op+": messaging service error", err)
}
