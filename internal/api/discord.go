package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	discordAPIBase   = "https://discord.com/api"
	discordUserAgent = "warikanbot/1.0 (+https://github.com/susu3304/warikanbot)"
)

type DiscordUser struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
	Avatar     *string `json:"avatar"`
}

func (u *DiscordUser) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

type DiscordGuild struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner *bool  `json:"owner,omitempty"`
}

type discordClient interface {
	User(ctx context.Context, accessToken string) (*DiscordUser, error)
	Guilds(ctx context.Context, accessToken string) ([]DiscordGuild, error)
}

type discordHTTPClient struct {
	http *http.Client
	base string
}

func newDiscordHTTPClient() *discordHTTPClient {
	return &discordHTTPClient{http: &http.Client{Timeout: 10 * time.Second}, base: discordAPIBase}
}

func (c *discordHTTPClient) get(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", discordUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *discordHTTPClient) User(ctx context.Context, accessToken string) (*DiscordUser, error) {
	var user DiscordUser
	if err := c.get(ctx, accessToken, "/users/@me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *discordHTTPClient) Guilds(ctx context.Context, accessToken string) ([]DiscordGuild, error) {
	var guilds []DiscordGuild
	if err := c.get(ctx, accessToken, "/users/@me/guilds", &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}
