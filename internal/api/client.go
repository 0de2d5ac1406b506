// Package api is the REST client surface of the chat engine: conversation
// history, binary uploads, and the fire-and-forget job/escrow side channel.
//
// The escrow contract itself is an external collaborator; this package only
// reaches its small HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"resty.dev/v3"

	"github.com/makerlink/chat/internal/wire"
	"github.com/makerlink/chat/pkg/logger"
)

// ErrRequestFailed is returned for non-2xx responses.
var ErrRequestFailed = errors.New("request failed")

const (
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 50
)

// Participants are the conversation participant identities delivered
// alongside history, used for sender resolution.
type Participants struct {
	MakerID   string `json:"makerId"`
	CreatorID string `json:"creatorId"`
}

// History is the reconciled result of a full paginated history fetch.
type History struct {
	Messages     []wire.RawMessage
	Participants Participants
}

// Client is the Makerlink REST API client.
type Client struct {
	http     *resty.Client
	pageSize int
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the history fetch page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// New creates a Client against the given base URL.
func New(baseURL, token string, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout)
	if token != "" {
		httpClient.SetAuthToken(token)
	}

	c := &Client{http: httpClient, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// historyPage tolerates both response shapes the backend has used: a bare
// array of raw messages, and an envelope with messages plus participants.
type historyPage struct {
	Messages     []wire.RawMessage
	Participants Participants
	HasMore      bool
}

func decodeHistoryPage(data []byte) (historyPage, error) {
	var page historyPage

	var bare []wire.RawMessage
	if err := json.Unmarshal(data, &bare); err == nil {
		page.Messages = bare
		return page, nil
	}

	var envelope struct {
		Data struct {
			Messages     []wire.RawMessage `json:"messages"`
			Participants Participants      `json:"participants"`
			HasMore      bool              `json:"hasMore"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return page, fmt.Errorf("undecodable history page: %w", err)
	}
	page.Messages = envelope.Data.Messages
	page.Participants = envelope.Data.Participants
	page.HasMore = envelope.Data.HasMore
	return page, nil
}

// FetchHistory retrieves the full message history of a conversation,
// following pagination until the backend reports no more pages.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) (History, error) {
	var out History

	for pageNum := 1; ; pageNum++ {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("page", strconv.Itoa(pageNum)).
			SetQueryParam("limit", strconv.Itoa(c.pageSize)).
			Get("/conversations/" + conversationID + "/messages")
		if err != nil {
			return out, fmt.Errorf("history fetch: %w", err)
		}
		if res.IsError() {
			return out, fmt.Errorf("history fetch: %w: %s", ErrRequestFailed, res.Status())
		}

		page, err := decodeHistoryPage(res.Bytes())
		if err != nil {
			return out, fmt.Errorf("history fetch: %w", err)
		}

		out.Messages = append(out.Messages, page.Messages...)
		if page.Participants.MakerID != "" || page.Participants.CreatorID != "" {
			out.Participants = page.Participants
		}

		logger.Debugf("api: history page %d for %s: %d messages", pageNum, conversationID, len(page.Messages))
		if !page.HasMore || len(page.Messages) == 0 {
			return out, nil
		}
	}
}

// CompleteJob reports a job as completed. Fire-and-forget: the caller only
// uses the error to settle the triggering optimistic message.
func (c *Client) CompleteJob(ctx context.Context, jobID string) error {
	return c.post(ctx, "/jobs/"+jobID+"/complete", nil)
}

// CreateEscrow asks the escrow collaborator to create a hold for a job.
func (c *Client) CreateEscrow(ctx context.Context, jobID, amount string) error {
	return c.post(ctx, "/escrow", map[string]string{"jobId": jobID, "amount": amount})
}

// FundEscrow funds an existing escrow hold.
func (c *Client) FundEscrow(ctx context.Context, escrowID string) error {
	return c.post(ctx, "/escrow/"+escrowID+"/fund", nil)
}

// ReleaseEscrow releases an escrow hold to the maker.
func (c *Client) ReleaseEscrow(ctx context.Context, escrowID string) error {
	return c.post(ctx, "/escrow/"+escrowID+"/release", nil)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if res.IsError() {
		return fmt.Errorf("post %s: %w: %s", path, ErrRequestFailed, res.Status())
	}
	return nil
}
