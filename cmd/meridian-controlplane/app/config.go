// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	AuthzURL          string `envconfig:"AUTHZ_URL" required:"true"`
	AuthzPresharedKey string `envconfig:"AUTHZ_PRESHARED_KEY" required:"true"`

	VpnAPIURL string `envconfig:"VPN_API_URL" required:"true"`
	VpnAPIKey string `envconfig:"VPN_API_KEY" required:"true"`

	BastionAPIURL string `envconfig:"BASTION_API_URL"`
	BastionAPIKey string `envconfig:"BASTION_API_KEY"`

	OIDCDiscoveryURL string `envconfig:"OIDC_DISCOVERY_URL" required:"true"`
	OIDCClientID     string `envconfig:"OIDC_CLIENT_ID"`

	ProxmoxEndpoint string `envconfig:"PROXMOX_ENDPOINT" required:"true"`
	ProxmoxTokenID  string `envconfig:"PROXMOX_TOKEN_ID" required:"true"`
	ProxmoxSecret   string `envconfig:"PROXMOX_SECRET" required:"true"`
	ProxmoxInsecure bool   `envconfig:"PROXMOX_INSECURE_SKIP_VERIFY"`

	// Kubeconfig selects the workload cluster for namespace grants. Empty
	// falls back to in-cluster credentials.
	Kubeconfig string `envconfig:"KUBECONFIG"`

	RootServiceAccountKey string `envconfig:"ROOT_SERVICE_ACCOUNT_KEY" required:"true"`

	// ImageStorage is the volume holding VM source images.
	ImageStorage string `envconfig:"IMAGE_STORAGE" default:"local"`
	// SnippetsStorage is "<volume>:<directory>" for cloud-init snippets.
	SnippetsStorage   string `envconfig:"SNIPPETS_STORAGE" default:"local:/var/lib/vz/snippets"`
	SnippetsVolumeID  string `envconfig:"SNIPPETS_VOLUME_ID" default:"local"`
	SnippetsDirectory string `envconfig:"SNIPPETS_DIRECTORY" default:"/var/lib/vz/snippets"`

	OperationsPollIntervalMS int `envconfig:"OPERATIONS_POLL_INTERVAL_MS" default:"1000"`
	WorkerConcurrency        int `envconfig:"WORKER_CONCURRENCY" default:"4"`

	ListenAddr     string   `envconfig:"LISTEN_ADDR" default:":8080"`
	DebugAddr      string   `envconfig:"DEBUG_ADDR" default:":8081"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	LogDevelopment bool `envconfig:"LOG_DEVELOPMENT"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("could not read configuration: %w", err)
	}
	return &cfg, nil
}

// PollInterval converts the millisecond knob to a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.OperationsPollIntervalMS) * time.Millisecond
}
