package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ChatSession is the backend's view of a crew chat after initialization
type ChatSession struct {
	Status          string       `json:"status"`
	Message         string       `json:"message"`
	CrewID          string       `json:"crew_id"`
	CrewName        string       `json:"crew_name"`
	CrewDescription string       `json:"crew_description"`
	ChatID          string       `json:"chat_id"`
	RequiredInputs  []InputField `json:"required_inputs"`
}

// ChatReply is the crew's answer to one message
type ChatReply struct {
	Status  string `json:"status"`
	Content string `json:"content"`
	ChatID  string `json:"chat_id"`
	CrewID  string `json:"crew_id"`
}

// ToolInfo describes a tool the backend exposes
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// InitializeChat opens or resumes a chat with a crew
func (c *Client) InitializeChat(ctx context.Context, crewID, chatID string) (*ChatSession, error) {
	var out ChatSession
	in := map[string]string{"crew_id": crewID, "chat_id": chatID}
	if err := c.do(ctx, http.MethodPost, "/api/initialize", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends one user message to a crew
func (c *Client) Chat(ctx context.Context, crewID, chatID, message string) (*ChatReply, error) {
	var out ChatReply
	in := map[string]string{"message": message, "crew_id": crewID, "chat_id": chatID}
	if err := c.do(ctx, http.MethodPost, "/api/chat", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTools returns the tools the backend can execute
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// ExecuteTool runs a tool with string inputs and returns its result
func (c *Client) ExecuteTool(ctx context.Context, name string, inputs map[string]string) (any, error) {
	if inputs == nil {
		inputs = map[string]string{}
	}
	var out struct {
		Result any `json:"result"`
	}
	path := fmt.Sprintf("/api/tools/%s/execute", url.PathEscape(name))
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"inputs": inputs}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}
