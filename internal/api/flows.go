package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Dependencies lists what a flow method listens to. The backend sends a list,
// a single name, or null; non-string entries such as router conditions are kept as text.
type Dependencies []string

func (d *Dependencies) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*d = Dependencies{single}
		return nil
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("dependencies: %w", err)
	}
	out := make(Dependencies, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
		case string:
			out = append(out, v)
		default:
			b, _ := json.Marshal(v)
			out = append(out, string(b))
		}
	}
	*d = out
	return nil
}

// FlowMethod is one method of a flow and the methods it listens to
type FlowMethod struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	IsStep       bool         `json:"is_step"`
	IsStart      bool         `json:"is_start"`
	IsListener   bool         `json:"is_listener"`
	Dependencies Dependencies `json:"dependencies"`
}

// FlowStructure is the static method graph of a flow
type FlowStructure struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Methods     []FlowMethod `json:"methods"`
}

// FlowStructure returns the method graph of a flow
func (c *Client) FlowStructure(ctx context.Context, id string) (*FlowStructure, error) {
	var out struct {
		Flow FlowStructure `json:"flow"`
	}
	path := fmt.Sprintf("/api/flows/%s/structure", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Flow.ID == "" {
		out.Flow.ID = id
	}
	return &out.Flow, nil
}

// ResourceCounts is how many crews, tools and flows the backend discovered
type ResourceCounts struct {
	Crews int `json:"crews"`
	Tools int `json:"tools"`
	Flows int `json:"flows"`
}

// ActiveFlow is a flow the backend is currently executing.
// StartTime is passed through as sent so callers can normalize it.
type ActiveFlow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartTime any    `json:"start_time"`
}

// Overview is the backend's landing-page summary
type Overview struct {
	Counts       ResourceCounts  `json:"counts"`
	RecentTraces json.RawMessage `json:"recent_traces"`
	ActiveFlows  []ActiveFlow    `json:"active_flows"`
}

// Overview returns resource counts, recent traces and active flows
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out struct {
		Data Overview `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// RecentTraces returns the raw list of the newest traces across all crews
func (c *Client) RecentTraces(ctx context.Context, limit int) ([]byte, error) {
	path := "/api/traces"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return c.raw(ctx, http.MethodGet, path, nil)
}

// TraceByID returns one raw trace from the telemetry store
func (c *Client) TraceByID(ctx context.Context, id string) ([]byte, error) {
	return c.raw(ctx, http.MethodGet, "/api/traces/"+url.PathEscape(id), nil)
}
