package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const abstractTimeURL = "https://timezone.abstractapi.com/v1/current_time/"

type TimeConfig struct {
	// APIKey enables the AbstractAPI lookup by place name.
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Time answers get_time. With an API key it resolves free-form places
// through AbstractAPI, otherwise the location must be an IANA zone name.
type Time struct {
	cfg    TimeConfig
	client *http.Client
	now    func() time.Time
}

func NewTime(cfg TimeConfig) *Time {
	if cfg.Endpoint == "" {
		cfg.Endpoint = abstractTimeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Time{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, now: time.Now}
}

func (*Time) Name() string { return "time" }

func (p *Time) Tools() []Tool {
	return []Tool{{
		Tool: llmTool("get_time", "Get the current time for a location.", []string{"location"}, map[string]any{
			"location": map[string]any{"type": "string", "description": "City, country or IANA time zone such as Europe/Paris."},
		}),
		Handler: p.handle,
	}}
}

func (p *Time) handle(ctx context.Context, args map[string]any) (string, error) {
	location, err := requiredString(args, "location")
	if err != nil {
		return "Please provide a valid location name.", nil
	}
	if p.cfg.APIKey != "" {
		return p.remote(ctx, location)
	}
	return p.local(location), nil
}

func (p *Time) local(location string) string {
	candidates := []string{location, strings.ReplaceAll(location, " ", "_")}
	for _, name := range candidates {
		loc, err := time.LoadLocation(name)
		if err != nil {
			continue
		}
		return formatTime(location, p.now().In(loc))
	}
	return fmt.Sprintf("Sorry, I couldn't get time for %s.", location)
}

type abstractTimeResponse struct {
	Datetime     string `json:"datetime"`
	TimezoneName string `json:"timezone_name"`
}

func (p *Time) remote(ctx context.Context, location string) (string, error) {
	q := url.Values{}
	q.Set("api_key", p.cfg.APIKey)
	q.Set("location", location)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("time lookup: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("time lookup status %d", resp.StatusCode)
	}
	var parsed abstractTimeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Sprintf("Sorry, I couldn't process time for %s.", location), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", parsed.Datetime)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't get time for %s.", location), nil
	}
	return formatTime(location, t), nil
}

func formatTime(location string, t time.Time) string {
	return fmt.Sprintf("Current time in %s is %s on %s", location, t.Format("03:04 PM"), t.Format("January 02, 2006"))
}
