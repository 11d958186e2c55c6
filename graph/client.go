package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gravitational/trace"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultGraphEndpoint = "https://graph.microsoft.com"
	defaultLoginEndpoint = "https://login.microsoftonline.com"

	graphScope = "https://graph.microsoft.com/.default"

	// appId is only projected for servicePrincipal members on the beta
	// members endpoint.
	memberSelect = "id,displayName,mail,mailNickname,appId,accountEnabled"

	maxRetries = 6
)

// Config holds the parameters of the authenticated Graph transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// GraphEndpoint and LoginEndpoint override the Microsoft defaults.
	// Tests point them at a local server.
	GraphEndpoint string
	LoginEndpoint string

	// HTTPClient is the client every call goes through, before
	// authentication and retries are layered on top.
	HTTPClient *http.Client
}

func (cfg *Config) SetDefaults() {
	if cfg.GraphEndpoint == "" {
		cfg.GraphEndpoint = defaultGraphEndpoint
	}
	if cfg.LoginEndpoint == "" {
		cfg.LoginEndpoint = defaultLoginEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
}

func (cfg *Config) Validate() error {
	if cfg.TenantID == "" {
		return trace.BadParameter("TenantID must be set")
	}
	if cfg.ClientID == "" {
		return trace.BadParameter("ClientID must be set")
	}
	if cfg.ClientSecret == "" {
		return trace.BadParameter("ClientSecret must be set")
	}
	return nil
}

// Client is the authenticated Microsoft Graph transport. Rate limited
// calls are retried here with the Retry-After backoff; callers only see
// failures that exhausted the retry budget.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	uri, err := url.Parse(cfg.GraphEndpoint)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", cfg.LoginEndpoint, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)

	retry := retryablehttp.NewClient()
	retry.RetryMax = maxRetries
	retry.Logger = nil
	// Authentication sits below the retry loop so every attempt carries
	// a fresh bearer token.
	retry.HTTPClient = oauth2.NewClient(ctx, creds.TokenSource(ctx))

	return &Client{
		httpClient: retry.StandardClient(),
		baseURL:    uri,
	}, nil
}

// GraphError is the error body returned by the Graph API.
type GraphError struct {
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Inner   *GraphError `json:"innerError,omitempty"`
}

func (g *GraphError) Error() string {
	var parts []string
	if g.Code != "" {
		parts = append(parts, g.Code)
	}
	if g.Message != "" {
		parts = append(parts, g.Message)
	}
	return strings.Join(parts, ": ")
}

func readGraphError(r io.Reader) *GraphError {
	var body struct {
		Error *GraphError `json:"error,omitempty"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil
	}
	return body.Error
}

type listResponse struct {
	Value []Object `json:"value"`
}

func (c *Client) get(ctx context.Context, uri string, out any) error {
	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return trace.Wrap(err)
	}
	rs, err := c.httpClient.Do(rq)
	if err != nil {
		return trace.Wrap(err)
	}
	defer rs.Body.Close()
	if rs.StatusCode < 200 || rs.StatusCode >= 300 {
		if gerr := readGraphError(rs.Body); gerr != nil {
			return trace.Wrap(gerr, "GET %s: status %s", rq.URL.Path, rs.Status)
		}
		return trace.BadParameter("GET %s: status %s", rq.URL.Path, rs.Status)
	}
	return trace.Wrap(json.NewDecoder(rs.Body).Decode(out))
}

// GetGroupByName resolves a display name to the single matching group
// descriptor. Zero or multiple matches yield a NotFound error so the
// caller can treat the name as a soft skip rather than a hard failure.
func (c *Client) GetGroupByName(ctx context.Context, name string) (Object, error) {
	uri := *c.baseURL
	uri.Path = "/v1.0/groups"
	uri.RawQuery = url.Values{
		"$filter": {fmt.Sprintf("displayName eq '%s'", name)},
		"$select": {"id,displayName"},
	}.Encode()

	var page listResponse
	if err := c.get(ctx, uri.String(), &page); err != nil {
		return nil, trace.Wrap(err)
	}
	if len(page.Value) != 1 {
		return nil, trace.NotFound("group %q resolved to %d directory groups", name, len(page.Value))
	}
	return page.Value[0], nil
}

// GetGroupMembers fetches the direct members of a group in the order
// returned by the directory.
func (c *Client) GetGroupMembers(ctx context.Context, groupID string) ([]Object, error) {
	uri := *c.baseURL
	uri.Path = fmt.Sprintf("/beta/groups/%s/members", groupID)
	uri.RawQuery = url.Values{"$select": {memberSelect}}.Encode()

	var page listResponse
	if err := c.get(ctx, uri.String(), &page); err != nil {
		return nil, trace.Wrap(err)
	}
	return page.Value, nil
}
