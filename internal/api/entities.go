package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/agenticgokit/crewview/internal/protocol"
)

// CrewInfo describes a crew the backend discovered
type CrewInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
}

// FlowInfo describes a flow the backend discovered
type FlowInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InputField is one input the backend needs before running an entity
type InputField struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CrewInit is the result of preparing a crew for visualization
type CrewInit struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	CrewID     string `json:"crew_id,omitempty"`
	AgentCount int    `json:"agent_count,omitempty"`
	TaskCount  int    `json:"task_count,omitempty"`
}

// FlowInit is the result of preparing a flow
type FlowInit struct {
	Status         string       `json:"status"`
	RequiredInputs []InputField `json:"required_inputs"`
}

// RunResult acknowledges a crew kickoff or flow execution
type RunResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	CrewID  string `json:"crew_id,omitempty"`
	FlowID  string `json:"flow_id,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ListCrews returns the crews the backend can run
func (c *Client) ListCrews(ctx context.Context) ([]CrewInfo, error) {
	var out struct {
		Crews []CrewInfo `json:"crews"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/crews", nil, &out); err != nil {
		return nil, err
	}
	return out.Crews, nil
}

// ListFlows returns the flows the backend can run
func (c *Client) ListFlows(ctx context.Context) ([]FlowInfo, error) {
	var out struct {
		Flows []FlowInfo `json:"flows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/flows", nil, &out); err != nil {
		return nil, err
	}
	return out.Flows, nil
}

// InitializeCrew prepares a crew for live visualization
func (c *Client) InitializeCrew(ctx context.Context, id string) (*CrewInit, error) {
	var out CrewInit
	path := fmt.Sprintf("/api/crews/%s/initialize", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitializeFlow prepares a flow and lists its required inputs
func (c *Client) InitializeFlow(ctx context.Context, id string) (*FlowInit, error) {
	var out FlowInit
	path := fmt.Sprintf("/api/flows/%s/initialize", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Initialize prepares either kind of entity
func (c *Client) Initialize(ctx context.Context, kind protocol.Kind, id string) error {
	if kind == protocol.KindFlow {
		_, err := c.InitializeFlow(ctx, id)
		return err
	}
	_, err := c.InitializeCrew(ctx, id)
	return err
}

// Traces returns the raw trace list of an entity for normalization
func (c *Client) Traces(ctx context.Context, kind protocol.Kind, id string) ([]byte, error) {
	path := fmt.Sprintf("/api/%s/%s/traces", kind.Plural(), url.PathEscape(id))
	return c.raw(ctx, http.MethodGet, path, nil)
}

// Kickoff starts a crew run or a flow execution with the given inputs
func (c *Client) Kickoff(ctx context.Context, kind protocol.Kind, id string, inputs map[string]string) (*RunResult, error) {
	action := "kickoff"
	if kind == protocol.KindFlow {
		action = "execute"
	}
	if inputs == nil {
		inputs = map[string]string{}
	}
	var out RunResult
	path := fmt.Sprintf("/api/%s/%s/%s", kind.Plural(), url.PathEscape(id), action)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"inputs": inputs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
