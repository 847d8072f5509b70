// Package slack sends deployment alerts to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/pkg/api"
)

const (
	Name       = "slack"
	DefaultAPI = "https://slack.com/api"
	TokenKey   = "plugins.slack.bot_user_oauth_access_token"
)

// Plugin manages one channel per deployment.
type Plugin struct {
	Deployment string
	Token      string
	BaseURL    string
	State      api.State
	Client     *plugins.HTTPClient
}

// New is the registry factory.
func New(env api.Env) (any, error) {
	base := env.Config.String("plugins.slack.api_url")
	if base == "" {
		base = DefaultAPI
	}
	p := &Plugin{
		Deployment: env.Config.String("deployment.name"),
		Token:      env.Config.String(TokenKey),
		BaseURL:    strings.TrimRight(base, "/"),
		State:      env.State,
		Client:     plugins.NewHTTPClient(plugins.DefaultTimeout, plugins.DefaultRetryConfig()),
	}
	p.Client.SetHeader("Authorization", "Bearer "+p.Token)
	return p, nil
}

// ChannelName is the channel created for the deployment.
func (p *Plugin) ChannelName() string { return "microbs-" + p.Deployment }

type channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
}

type response struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Channel  channel   `json:"channel"`
	Channels []channel `json:"channels"`
}

// APIError is a Slack response with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string { return fmt.Sprintf("slack %s: %s", e.Method, e.Code) }

func (p *Plugin) call(ctx context.Context, httpMethod, method string, in any, query url.Values) (*response, error) {
	u := p.BaseURL + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var out response
	if err := p.Client.DoJSON(ctx, httpMethod, u, in, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return &out, &APIError{Method: method, Code: out.Error}
	}
	return &out, nil
}

func (p *Plugin) checkConfig() error {
	var missing []string
	if p.Deployment == "" {
		missing = append(missing, "deployment.name")
	}
	if p.Token == "" {
		missing = append(missing, TokenKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("slack requires %s", strings.Join(missing, ", "))
	}
	return nil
}

// Setup makes sure the deployment channel exists and records it in state.
func (p *Plugin) Setup(ctx context.Context) error {
	if err := p.checkConfig(); err != nil {
		return err
	}
	if id := p.State.GetString("plugins.slack.channel_id"); id != "" {
		log.Info().Msg("")
		log.Info().Msgf("Channel ID exists in state: %s", id)
		log.Info().Msg("Checking if the channel exists on Slack...")
		res, err := p.call(ctx, http.MethodGet, "conversations.info", nil, url.Values{"channel": {id}})
		if err == nil && !res.Channel.IsArchived {
			log.Info().Msgf("...channel exists on Slack: '%s' [id=%s]", res.Channel.Name, id)
			return nil
		}
		log.Info().Msg("...channel does not exist on Slack. A new one will be created.")
	}

	name := p.ChannelName()
	log.Info().Msg("")
	log.Info().Msgf("Creating Slack channel [name=%s]...", name)
	ch, err := p.create(ctx, name)
	if err != nil {
		log.Error().Err(err).Msg("...failure")
		return err
	}
	log.Info().Msgf("...created: '%s'", ch.Name)

	p.State.Set("plugins.slack.channel", ch.Name)
	p.State.Set("plugins.slack.channel_id", ch.ID)
	if err := p.State.Save(); err != nil {
		return err
	}
	log.Info().Msg("")
	log.Info().Msg("Slack is ready.")
	log.Info().Msgf("Channel:       %s", ch.Name)
	return nil
}

// create makes the channel, or finds it when the name is already taken.
func (p *Plugin) create(ctx context.Context, name string) (channel, error) {
	res, err := p.call(ctx, http.MethodPost, "conversations.create", map[string]any{"name": name}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "name_taken" {
		return p.find(ctx, name)
	}
	if err != nil {
		return channel{}, err
	}
	return res.Channel, nil
}

func (p *Plugin) find(ctx context.Context, name string) (channel, error) {
	res, err := p.call(ctx, http.MethodGet, "conversations.list", nil, url.Values{"limit": {"1000"}})
	if err != nil {
		return channel{}, err
	}
	for _, ch := range res.Channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return channel{}, fmt.Errorf("slack channel %s is taken but not visible to the bot", name)
}

// Destroy archives the deployment channel. Slack does not let bots delete
// channels.
func (p *Plugin) Destroy(ctx context.Context) error {
	id := p.State.GetString("plugins.slack.channel_id")
	if id == "" {
		log.Info().Msg("No Slack channel recorded in state.")
		return nil
	}
	log.Info().Msg("")
	log.Info().Msgf("Archiving Slack channel [id=%s]...", id)
	_, err := p.call(ctx, http.MethodPost, "conversations.archive", map[string]any{"channel": id}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == "already_archived" || apiErr.Code == "channel_not_found") {
		err = nil
	}
	if err != nil {
		return err
	}
	log.Info().Msg("...archived. Slack channels must be deleted via the Slack user interface.")
	p.State.Set("plugins.slack.channel_id", "")
	return p.State.Save()
}

func (p *Plugin) Validate(ctx context.Context) ([]api.ValidationResult, error) {
	if p.Token == "" {
		return []api.ValidationResult{{Message: fmt.Sprintf("'%s' is required but missing from slack plugin config.", TokenKey)}}, nil
	}
	results := []api.ValidationResult{{Success: true, Message: "no problems detected in slack plugin config."}}
	if _, err := p.call(ctx, http.MethodPost, "auth.test", map[string]any{}, nil); err != nil {
		return append(results, api.ValidationResult{Message: "slack token rejected: " + err.Error()}), nil
	}
	return append(results, api.ValidationResult{Success: true, Message: "slack token is valid"}), nil
}

func (p *Plugin) Hooks() map[api.Hook]api.HookFunc {
	return map[api.Hook]api.HookFunc{
		api.AfterRollout: p.announceRollout,
	}
}

// announceRollout posts the profile that was just rolled out. A failed post
// is logged; it never fails the rollout.
func (p *Plugin) announceRollout(ctx context.Context) error {
	id := p.State.GetString("plugins.slack.channel_id")
	if id == "" {
		log.Debug().Msg("No Slack channel to announce the rollout in")
		return nil
	}
	text := fmt.Sprintf("Rolled out profile `%s` of deployment `%s` (version %s).",
		p.State.GetString(api.ProfileKey), p.Deployment, p.State.GetString("deployment.version"))
	if _, err := p.call(ctx, http.MethodPost, "chat.postMessage", map[string]any{"channel": id, "text": text}, nil); err != nil {
		log.Warn().Err(err).Msg("Could not post rollout to Slack")
	}
	return nil
}
