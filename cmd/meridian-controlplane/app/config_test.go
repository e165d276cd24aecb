// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	requiredEnv := map[string]string{
		"DATABASE_URL":             "postgres://meridian@localhost/meridian",
		"AUTHZ_URL":                "https://authz.internal:8443",
		"AUTHZ_PRESHARED_KEY":      "authz-key",
		"VPN_API_URL":              "https://vpn.internal",
		"VPN_API_KEY":              "vpn-key",
		"OIDC_DISCOVERY_URL":       "https://sso.example.com/.well-known/openid-configuration",
		"PROXMOX_ENDPOINT":         "https://pve.example.com:8006",
		"PROXMOX_TOKEN_ID":         "meridian@pve!cp",
		"PROXMOX_SECRET":           "pve-secret",
		"ROOT_SERVICE_ACCOUNT_KEY": "root-key",
	}

	setRequired := func() {
		t := GinkgoT()
		for k, v := range requiredEnv {
			t.Setenv(k, v)
		}
	}

	It("fails when a required variable is missing", func() {
		setRequired()
		GinkgoT().Setenv("DATABASE_URL", "")

		_, err := LoadConfig()
		Expect(err).To(MatchError(ContainSubstring("DATABASE_URL")))
	})

	It("applies defaults for the optional knobs", func() {
		setRequired()

		cfg, err := LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ListenAddr).To(Equal(":8080"))
		Expect(cfg.DebugAddr).To(Equal(":8081"))
		Expect(cfg.WorkerConcurrency).To(Equal(4))
		Expect(cfg.AllowedOrigins).To(ConsistOf("*"))
		Expect(cfg.SnippetsDirectory).To(Equal("/var/lib/vz/snippets"))
		Expect(cfg.PollInterval()).To(Equal(time.Second))
	})

	It("reads overrides from the environment", func() {
		setRequired()
		t := GinkgoT()
		t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
		t.Setenv("OPERATIONS_POLL_INTERVAL_MS", "250")
		t.Setenv("ALLOWED_ORIGINS", "https://console.example.com,https://admin.example.com")

		cfg, err := LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ListenAddr).To(Equal("127.0.0.1:9000"))
		Expect(cfg.PollInterval()).To(Equal(250 * time.Millisecond))
		Expect(cfg.AllowedOrigins).To(HaveLen(2))
	})
})

var _ = Describe("Options", func() {
	It("overrides the configuration only when flags are set", func() {
		cfg := &Config{ListenAddr: ":8080"}

		(&Options{}).Apply(cfg)
		Expect(cfg.ListenAddr).To(Equal(":8080"))
		Expect(cfg.LogDevelopment).To(BeFalse())

		(&Options{Development: true, ListenAddr: ":9090"}).Apply(cfg)
		Expect(cfg.ListenAddr).To(Equal(":9090"))
		Expect(cfg.LogDevelopment).To(BeTrue())
	})
})
