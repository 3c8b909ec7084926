// Copyright 2025 Aura Calistenia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"os"
	"strconv"
	"strings"

	"github.com/aura-calistenia/aura-state/pkg/config"
)

// Env aliases accepted for each SMTP setting. Deployments have configured
// mail under several naming schemes over the years; the first set, non-empty
// alias wins.
var (
	hostKeys = []string{
		"AURA_SMTP_HOST",
		"AURA_MAIL_HOST",
		"SMTP_HOST",
		"MAIL_HOST",
		"EMAIL_HOST",
		"GMAIL_SMTP_HOST",
	}
	userKeys = []string{
		"AURA_SMTP_USER",
		"AURA_SMTP_USERNAME",
		"AURA_MAIL_USER",
		"AURA_MAIL_USERNAME",
		"SMTP_USER",
		"SMTP_USERNAME",
		"MAIL_USER",
		"MAIL_USERNAME",
		"EMAIL_USER",
		"EMAIL_USERNAME",
		"GMAIL_USER",
		"GMAIL_EMAIL",
		"SMTP_LOGIN",
	}
	passwordKeys = []string{
		"AURA_SMTP_PASS",
		"AURA_SMTP_PASSWORD",
		"AURA_MAIL_PASS",
		"AURA_MAIL_PASSWORD",
		"SMTP_PASS",
		"SMTP_PASSWORD",
		"MAIL_PASS",
		"MAIL_PASSWORD",
		"EMAIL_PASS",
		"EMAIL_PASSWORD",
		"GMAIL_APP_PASSWORD",
		"GMAIL_PASS",
		"SMTP_APP_PASSWORD",
		"APP_PASSWORD",
	}
	fromKeys = []string{
		"AURA_SMTP_FROM",
		"AURA_MAIL_FROM",
		"SMTP_FROM",
		"MAIL_FROM",
		"MAIL_FROM_NAME",
		"EMAIL_FROM",
		"FROM_NAME",
	}
	adminKeys = []string{
		"AURA_SMTP_ADMIN",
		"AURA_SMTP_ADMIN_EMAIL",
		"AURA_MAIL_ADMIN",
		"SMTP_ADMIN",
		"MAIL_ADMIN",
		"ADMIN_EMAIL",
		"SMTP_TO",
	}
	portKeys = []string{
		"AURA_SMTP_PORT",
		"AURA_MAIL_PORT",
		"SMTP_PORT",
		"MAIL_PORT",
		"EMAIL_PORT",
		"GMAIL_SMTP_PORT",
	}
	tlsKeys     = []string{"AURA_SMTP_TLS", "AURA_MAIL_TLS", "SMTP_TLS", "MAIL_TLS", "EMAIL_TLS"}
	sslKeys     = []string{"AURA_SMTP_SSL", "AURA_MAIL_SSL", "SMTP_SSL", "MAIL_SSL", "EMAIL_SSL"}
	enabledKeys = []string{"AURA_SMTP_ENABLED", "AURA_MAIL_ENABLED", "SMTP_ENABLED", "MAIL_ENABLED", "EMAIL_ENABLED"}
)

// DefaultFromName is the sender display name when none is configured.
const DefaultFromName = "AuraCalistenia"

// Settings is the resolved SMTP configuration.
type Settings struct {
	Enabled    bool
	Host       string
	Port       int
	Username   string
	Password   string
	FromName   string
	AdminEmail string
	UseTLS     bool
	UseSSL     bool
}

// SettingsFromEnv resolves the SMTP settings from the process environment.
func SettingsFromEnv() Settings {
	return settingsFromSource(systemEnv())
}

// settingsFromSource is SettingsFromEnv over an explicit environment, which
// is what the tests drive.
func settingsFromSource(env envSource) Settings {
	var s Settings
	s.Host = env.first(hostKeys...)
	s.Username = env.first(userKeys...)
	s.Password = env.first(passwordKeys...)
	s.FromName = env.first(fromKeys...)
	if s.FromName == "" {
		s.FromName = DefaultFromName
	}
	s.AdminEmail = env.first(adminKeys...)

	s.UseSSL = env.boolValue(sslKeys, false)
	s.UseTLS = env.boolValue(tlsKeys, !s.UseSSL)

	s.Port = defaultPort(s.UseSSL)
	if raw := env.first(portKeys...); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			s.Port = port
		}
	}

	// A host given as host:port wins over the port variables, unless it is
	// really a URL.
	if strings.Contains(s.Host, ":") && !strings.HasPrefix(s.Host, "http://") && !strings.HasPrefix(s.Host, "https://") {
		if i := strings.LastIndex(s.Host, ":"); i > 0 {
			hostPart, portPart := s.Host[:i], s.Host[i+1:]
			if isDigits(portPart) {
				s.Host = strings.TrimSpace(hostPart)
				s.Port, _ = strconv.Atoi(portPart)
			}
		}
	}

	// Gmail conveniences: infer the host from a gmail account, and undo the
	// spaces gmail inserts when displaying app passwords.
	gmailUser := strings.HasSuffix(strings.ToLower(s.Username), "@gmail.com")
	if s.Host == "" && gmailUser {
		s.Host = "smtp.gmail.com"
	}
	if gmailUser && strings.Contains(s.Password, " ") {
		s.Password = strings.ReplaceAll(s.Password, " ", "")
	}

	// The well-known submission ports decide the encryption mode.
	if s.Port == 465 && !s.UseSSL {
		s.UseSSL = true
		s.UseTLS = false
	} else if s.Port == 587 && s.UseSSL {
		s.UseSSL = false
		s.UseTLS = true
	}
	if s.UseSSL && s.UseTLS {
		s.UseTLS = false
	}
	if !s.UseSSL && !s.UseTLS {
		if strings.EqualFold(s.Host, "smtp.gmail.com") || gmailUser {
			s.UseTLS = true
		}
	}

	explicitEnabled := env.boolValue(enabledKeys, false)
	s.Enabled = explicitEnabled || s.hasCredentials()
	return s
}

func defaultPort(useSSL bool) int {
	if useSSL {
		return 465
	}
	return 587
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s Settings) hasCredentials() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

// MissingFields lists the canonical env names of the required settings that
// are absent, for surfacing in the status panel.
func (s Settings) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(s.Host) == "" {
		missing = append(missing, "AURA_SMTP_HOST")
	}
	if strings.TrimSpace(s.Username) == "" {
		missing = append(missing, "AURA_SMTP_USER")
	}
	if strings.TrimSpace(s.Password) == "" {
		missing = append(missing, "AURA_SMTP_PASS")
	}
	return missing
}

// FromAddress is the address the mail is sent from, falling back on the
// admin recipient when the account is not an address of its own.
func (s Settings) FromAddress() string {
	if s.Username != "" {
		return s.Username
	}
	return s.AdminEmail
}

// envSource maps raw environment keys to their values.
type envSource map[string]string

func systemEnv() envSource {
	source := envSource{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			source[kv[:i]] = kv[i+1:]
		}
	}
	return source
}

// lookup finds key in the environment, trying the exact spelling first and
// then a case-insensitive scan.
func (e envSource) lookup(key string) (string, bool) {
	for _, candidate := range []string{key, strings.ToUpper(key), strings.ToLower(key)} {
		if raw, ok := e[candidate]; ok {
			return raw, true
		}
	}
	lower := strings.ToLower(key)
	for candidate, raw := range e {
		if strings.ToLower(candidate) == lower {
			return raw, true
		}
	}
	return "", false
}

// first returns the first alias that resolves to a non-empty cleaned value.
func (e envSource) first(keys ...string) string {
	for _, key := range keys {
		raw, ok := e.lookup(key)
		if !ok {
			continue
		}
		if value := config.StripQuotes(raw); value != "" {
			return value
		}
	}
	return ""
}

// boolValue parses the first set, non-empty alias as a boolean. Anything
// outside the accepted truthy spellings counts as false.
func (e envSource) boolValue(keys []string, fallback bool) bool {
	for _, key := range keys {
		raw, ok := e.lookup(key)
		if !ok {
			continue
		}
		cleaned := config.StripQuotes(raw)
		if cleaned == "" {
			continue
		}
		switch strings.ToLower(cleaned) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	}
	return fallback
}
