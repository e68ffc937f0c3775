// Copyright 2024-2026 Aiku AI

// Package config loads and validates the bot's YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

//go:embed example-config.yaml
var ExampleConfig string

const (
	DefaultSyncTimeout = 30 * time.Second
	// MaxSyncTimeout keeps long polls well inside the HTTP client's own
	// 180 second request timeout.
	MaxSyncTimeout = 150 * time.Second
)

// Config is the whole configuration file.
type Config struct {
	// Message is the acknowledgement posted into newly joined rooms.
	Message    string    `yaml:"message"`
	TargetUser id.UserID `yaml:"target_user"`
	Debug      bool      `yaml:"debug"`

	ControlRoomName string        `yaml:"control_room_name"`
	SyncTimeout     time.Duration `yaml:"sync_timeout"`
	// AdminAPIAddr is the listen address for the status API. Empty disables it.
	AdminAPIAddr string `yaml:"admin_api_addr"`

	Servers []Account `yaml:"servers"`

	Store   store.Config      `yaml:"store"`
	Logging zeroconfig.Config `yaml:"logging"`

	messageTemplate *template.Template `yaml:"-"`
}

// Account is one identity the bot runs as.
type Account struct {
	Address     string    `yaml:"address"`
	UserID      id.UserID `yaml:"mxid"`
	AccessToken string    `yaml:"access_token"`
	Password    string    `yaml:"password"`
}

// HasCredentials reports whether the account can authenticate at all.
func (a Account) HasCredentials() bool {
	return a.AccessToken != "" || a.Password != ""
}

// MessageParams holds the fields available to the message template.
type MessageParams struct {
	RoomID     id.RoomID
	TargetUser id.UserID
	UserID     id.UserID
}

// ConfigError is returned for any problem that prevents the config from
// being used. It is fatal at startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and parses the message template.
func (c *Config) PostProcess() error {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = DefaultSyncTimeout
	}
	var err error
	c.messageTemplate, err = template.New("message").Parse(c.Message)
	if err != nil {
		return fmt.Errorf("failed to parse message template: %w", err)
	}
	return nil
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Message) == "" {
		errs = append(errs, errors.New("message must not be empty"))
	}
	if _, _, err := c.TargetUser.Parse(); err != nil {
		errs = append(errs, fmt.Errorf("target_user %q is not a valid user ID", c.TargetUser))
	}
	if c.SyncTimeout > MaxSyncTimeout {
		errs = append(errs, fmt.Errorf("sync_timeout %s exceeds the maximum of %s", c.SyncTimeout, MaxSyncTimeout))
	}
	if len(c.Servers) == 0 {
		errs = append(errs, errors.New("at least one entry in servers is required"))
	}
	seen := make(map[id.UserID]struct{}, len(c.Servers))
	for i, acc := range c.Servers {
		if _, _, err := acc.UserID.Parse(); err != nil {
			errs = append(errs, fmt.Errorf("servers[%d]: mxid %q is not a valid user ID", i, acc.UserID))
		}
		if _, dup := seen[acc.UserID]; dup {
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate mxid %s", i, acc.UserID))
		}
		seen[acc.UserID] = struct{}{}
		if u, err := url.Parse(acc.Address); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("servers[%d]: address %q is not an absolute URL", i, acc.Address))
		}
	}
	switch c.Store.Type {
	case store.TypeFile, store.TypeSQLite, "":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required"))
		}
	case store.TypeMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}
	return errors.Join(errs...)
}

// FormatMessage renders the acknowledgement message. If rendering fails the
// raw message is returned.
func (c *Config) FormatMessage(params MessageParams) string {
	if c.messageTemplate == nil {
		return c.Message
	}
	var buf strings.Builder
	if err := c.messageTemplate.Execute(&buf, params); err != nil {
		return c.Message
	}
	return buf.String()
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "message")
	helper.Copy(up.Str, "target_user")
	helper.Copy(up.Bool, "debug")
	helper.Copy(up.Str, "control_room_name")
	helper.Copy(up.Str, "sync_timeout")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.List, "servers")
	helper.Copy(up.Str, "store", "type")
	helper.Copy(up.Str, "store", "path")
	helper.Copy(up.Map, "logging")
}

// Upgrader merges a user config over the embedded example config.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Base:           ExampleConfig,
}
