package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/server/api"
)

const defaultServer = "http://localhost:8050"

// Client holds HTTP client state for the server commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func newClient(name string, args []string) (*Client, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	serverURL := fs.String("server", defaultServer, "bookstore server URL")
	token := fs.String("token", os.Getenv("BOOKSTORE_TOKEN"), "JWT auth token")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// do sends a request and decodes the JSON response into v (may be nil).
func (c *Client) do(method, path string, v any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func cmdStatus(args []string) error {
	c, err := newClient("status", args)
	if err != nil {
		return err
	}
	var status api.StatusResponse
	if err := c.do(http.MethodGet, "/api/status", &status); err != nil {
		return err
	}
	fmt.Printf("state:   %s\n", status.State)
	fmt.Printf("step:    %d\n", status.Step)
	fmt.Printf("version: %s\n", status.Version)
	if c.Token == "" {
		return nil
	}

	var sum scheduler.Summary
	if err := c.do(http.MethodGet, "/api/summary", &sum); err != nil {
		return err
	}
	fmt.Println(renderSummary(sum, ""))
	return nil
}

func cmdControl(action string, args []string) error {
	c, err := newClient(action, args)
	if err != nil {
		return err
	}
	var result struct {
		State scheduler.State `json:"state"`
		Step  int             `json:"step"`
	}
	if err := c.do(http.MethodPost, "/api/sim/"+action, &result); err != nil {
		return err
	}
	fmt.Printf("simulation %s at step %d\n", result.State, result.Step)
	return nil
}
