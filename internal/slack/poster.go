package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/store"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Poster publishes extraction results to a reviewer channel.
type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostExtraction posts one action's metadata with the reviewer-facing
// relevance narratives. Each student-facing response goes into the thread.
func (p *Poster) PostExtraction(ctx context.Context, action *store.Action, md *extractor.Metadata) error {
	text := formatExtraction(action, md)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Verify or edit this action in the CMS.",
					},
				},
			},
		},
	})
	if err != nil {
		return err
	}
	p.logger.Info("posted extraction to slack", "ts", ts, "action_uuid", action.UUID)

	if replies := formatResponses(md); replies != "" {
		if err := p.PostThread(ctx, ts, replies); err != nil {
			return fmt.Errorf("post responses: %w", err)
		}
	}
	return nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

// PostSummary posts a standalone text message.
func (p *Poster) PostSummary(ctx context.Context, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
	})
	return err
}

// post sends a chat.postMessage payload and returns the message ts.
func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatExtraction(action *store.Action, md *extractor.Metadata) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Action:* %s\n", md.Title)
	if action.UserEmail != "" {
		fmt.Fprintf(&sb, "*Owner:* %s\n", action.UserEmail)
	}
	fmt.Fprintf(&sb, "*Type:* %s / %s\n", md.Type, md.SubType)
	fmt.Fprintf(&sb, "*Category:* %s / %s\n", md.Category, md.SubCategory)
	if action.Type != "" && action.Type != string(md.Type) {
		fmt.Fprintf(&sb, "_Type changed from %s_\n", action.Type)
	}
	if md.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", md.Description)
	}
	sb.WriteString("\n")

	if len(md.Skills) == 0 {
		sb.WriteString("_No skills mapped for this action type._")
		return sb.String()
	}

	fmt.Fprintf(&sb, "*Skills found: %d*\n", len(md.Skills))
	for i, s := range md.Skills {
		fmt.Fprintf(&sb, "%d. *%s*: %s\n", i+1, s.Label, s.Relevance)
	}
	return sb.String()
}

func formatResponses(md *extractor.Metadata) string {
	var sb strings.Builder
	for _, s := range md.Skills {
		if s.Response == "" {
			continue
		}
		fmt.Fprintf(&sb, "*%s* (to student): %s\n", s.Label, s.Response)
	}
	return sb.String()
}
