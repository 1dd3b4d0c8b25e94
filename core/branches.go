package streaming

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Direction selects a sibling relative to the current branch.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// SiblingMessage is one alternative branch at a point in the message tree.
type SiblingMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// BranchCursor is the server's answer to "where am I among my siblings".
// It is recomputed on every call and never cached: the sibling index lives
// on the backend and drifts whenever branches are created or deleted.
type BranchCursor struct {
	Siblings     []SiblingMessage `json:"siblings"`
	CurrentIndex int              `json:"current_index"`
	Total        int              `json:"total"`
}

// Siblings fetches the sibling set and cursor position for a message.
func (c *Client) Siblings(ctx context.Context, messageID string) (*BranchCursor, error) {
	var cursor BranchCursor
	if err := c.getJSON(ctx, "/chat/messages/"+messageID+"/siblings", &cursor); err != nil {
		return nil, fmt.Errorf("failed to fetch siblings: %w", err)
	}
	return &cursor, nil
}

// Navigate moves to the previous or next sibling of a message and returns
// the re-fetched cursor. Out-of-bounds requests are passed through: if the
// backend rejects them its message is surfaced verbatim, bound checks on
// buttons are the caller's concern.
func (c *Client) Navigate(ctx context.Context, messageID string, direction Direction) (*BranchCursor, error) {
	ctx, span := tracer.Start(ctx, "navigate branch")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", messageID),
		attribute.String("navigate.direction", string(direction)),
	)

	resp, err := c.postJSON(ctx, "/chat/messages/"+messageID+"/navigate/"+string(direction), struct{}{})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		span.RecordError(err)
		return nil, err
	}

	return c.refetchCursor(ctx, resp)
}

// Switch makes a specific sibling the active branch and returns the
// re-fetched cursor for it.
func (c *Client) Switch(ctx context.Context, messageID string) (*BranchCursor, error) {
	ctx, span := tracer.Start(ctx, "switch branch")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	resp, err := c.postJSON(ctx, "/chat/messages/"+messageID+"/switch", struct{}{})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		span.RecordError(err)
		return nil, err
	}

	// The switch response only confirms success; the cursor comes from a
	// fresh sibling fetch for the message that is now active.
	return c.Siblings(ctx, messageID)
}

// refetchCursor resolves the message the navigation landed on and asks the
// server for fresh sibling metadata, so the cursor always reflects server
// truth instead of a locally advanced index.
func (c *Client) refetchCursor(ctx context.Context, resp *http.Response) (*BranchCursor, error) {
	var landed struct {
		MessageID string `json:"message_id"`
		ID        string `json:"id"`
	}
	if err := decodeBody(resp, &landed); err != nil {
		err = fmt.Errorf("failed to decode navigation response: %w", err)
		trace.SpanFromContext(ctx).RecordError(err)
		return nil, err
	}

	messageID := landed.MessageID
	if messageID == "" {
		messageID = landed.ID
	}
	if messageID == "" {
		err := fmt.Errorf("navigation response carried no message id")
		trace.SpanFromContext(ctx).RecordError(err)
		return nil, err
	}

	return c.Siblings(ctx, messageID)
}
