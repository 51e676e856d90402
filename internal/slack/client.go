package slack

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Client posts farm alerts to a Slack channel. A nil *Client is a disabled notifier.
type Client struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger

	mu           sync.Mutex
	backoffUntil time.Time
	now          func() time.Time
}

// NewClient creates a new slack client, or nil when Slack is not configured.
func NewClient(token, channelID string, logger *zap.Logger, options ...slack.Option) *Client {
	if token == "" || channelID == "" {
		logger.Info("slack token or channel ID is not configured, slack notifications are disabled")
		return nil
	}
	return &Client{
		api:       slack.New(token, options...),
		channelID: channelID,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyAlerts reports the current alert set of a site. An empty set is reported as recovered.
func (c *Client) NotifyAlerts(siteID string, alerts []string) {
	if c == nil || c.api == nil {
		return
	}
	if len(alerts) == 0 {
		c.SendRichMessage(NewInfoMessage("Farm "+siteID, "All sensors are back to normal."))
		return
	}
	c.SendRichMessage(NewAlertMessage("Farm "+siteID, alerts))
}

// SendMessage sends a simple text message wrapped as an info block.
func (c *Client) SendMessage(message string) {
	if c == nil || c.api == nil {
		return
	}
	c.SendRichMessage(NewInfoMessage("CropSense", message))
}

// SendRichMessage sends a block kit message unless the client is backing off.
func (c *Client) SendRichMessage(options slack.MsgOption) {
	if c == nil || c.api == nil {
		return
	}

	if c.IsRateLimited() {
		c.logger.Debug("skipping slack message during rate limit backoff")
		return
	}

	_, _, err := c.api.PostMessage(c.channelID, options)
	if err != nil {
		if c.isRateLimitError(err) {
			c.handleRateLimit(err)
		} else {
			c.logger.Warn("failed to send slack message", zap.Error(err))
		}
	}
}

// isRateLimitError checks if the error is related to rate limiting
func (c *Client) isRateLimitError(err error) bool {
	if _, ok := err.(*slack.RateLimitedError); ok {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limited") ||
		strings.Contains(errStr, "message_limit_exceeded") ||
		strings.Contains(errStr, "too_many_requests")
}

// handleRateLimit starts a backoff window, longer when the message quota is exhausted.
func (c *Client) handleRateLimit(err error) {
	backoff := 1 * time.Minute
	if strings.Contains(strings.ToLower(err.Error()), "message_limit_exceeded") {
		backoff = 5 * time.Minute
	}

	c.mu.Lock()
	c.backoffUntil = c.clock()().Add(backoff)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Warn("slack rate limit detected, suppressing messages", zap.Error(err), zap.Duration("backoff", backoff))
	}
}

// IsRateLimited returns true if the client is currently in a rate limit backoff period
func (c *Client) IsRateLimited() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock()().Before(c.backoffUntil)
}

func (c *Client) clock() func() time.Time {
	if c.now == nil {
		return time.Now
	}
	return c.now
}

// NewInfoMessage builds a header + text block message.
func NewInfoMessage(title, text string) slack.MsgOption {
	return slack.MsgOptionBlocks(
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	)
}

// NewAlertMessage lists the active alerts of a site.
func NewAlertMessage(title string, alerts []string) slack.MsgOption {
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("• :warning: *%s*", a))
	}
	return NewInfoMessage(title, strings.Join(lines, "\n"))
}
