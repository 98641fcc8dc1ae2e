package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/scanauth/pkg/usage"
)

const usageTable = "usage_logs"

// UsageLog is a usage.Log over the resource API.
type UsageLog struct {
	c *Client
}

var _ usage.Log = (*UsageLog)(nil)

// UsageLogs returns the usage log table.
func (c *Client) UsageLogs() *UsageLog {
	return &UsageLog{c: c}
}

func (l *UsageLog) Append(ctx context.Context, e usage.Entry) error {
	body := map[string]any{
		"id":         e.ID,
		"user_id":    e.IdentityID,
		"action":     e.Action,
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.ResourceID != "" {
		body["resource_id"] = e.ResourceID
	}
	if len(e.Metadata) > 0 {
		body["metadata"] = e.Metadata
	}

	_, err := l.c.do(ctx, request{
		method:  http.MethodPost,
		table:   usageTable,
		body:    body,
		headers: map[string]string{"Prefer": "return=minimal"},
	}, nil)
	return err
}

// Count asks the API for an exact count and reads it from Content-Range.
func (l *UsageLog) Count(ctx context.Context, identityID uuid.UUID, action string, since time.Time) (int64, error) {
	q := url.Values{
		"select":     {"id"},
		"user_id":    {eq(identityID.String())},
		"action":     {eq(action)},
		"created_at": {"gte." + since.UTC().Format(time.RFC3339Nano)},
	}
	resp, err := l.c.do(ctx, request{
		method: http.MethodGet,
		table:  usageTable,
		query:  q,
		headers: map[string]string{
			"Prefer":     "count=exact",
			"Range-Unit": "items",
			"Range":      "0-0",
		},
	}, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(resp.Header.Get("Content-Range"))
}

// parseContentRange reads the total from "0-0/42" or "*/0".
func parseContentRange(v string) (int64, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("%w: content-range %q has no total", ErrUnexpectedStatus, v)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: content-range %q: %w", ErrUnexpectedStatus, v, err)
	}
	return n, nil
}
