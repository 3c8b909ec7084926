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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsDefaults(t *testing.T) {
	s := settingsFromSource(envSource{})

	assert.False(t, s.Enabled)
	assert.Empty(t, s.Host)
	assert.Equal(t, 587, s.Port)
	assert.Equal(t, DefaultFromName, s.FromName)
	assert.False(t, s.UseSSL)
	assert.True(t, s.UseTLS)
}

func TestSettingsAliasPrecedence(t *testing.T) {
	s := settingsFromSource(envSource{
		"SMTP_HOST":      "smtp.legacy.example",
		"AURA_SMTP_HOST": "smtp.aura.example",
		"EMAIL_USER":     "fallback@example.com",
		"AURA_SMTP_USER": "coach@example.com",
		"SMTP_PASS":      "hunter2",
		"MAIL_FROM_NAME": "Aura Coaching",
		"ADMIN_EMAIL":    "admin@example.com",
	})

	assert.Equal(t, "smtp.aura.example", s.Host)
	assert.Equal(t, "coach@example.com", s.Username)
	assert.Equal(t, "hunter2", s.Password)
	assert.Equal(t, "Aura Coaching", s.FromName)
	assert.Equal(t, "admin@example.com", s.AdminEmail)
	assert.True(t, s.Enabled)
}

func TestSettingsCaseInsensitiveLookup(t *testing.T) {
	s := settingsFromSource(envSource{
		"aura_smtp_host": "smtp.example.com",
		"Smtp_User":      "coach@example.com",
		"smtp_pass":      "secret",
	})

	assert.Equal(t, "smtp.example.com", s.Host)
	assert.Equal(t, "coach@example.com", s.Username)
	assert.Equal(t, "secret", s.Password)
}

func TestSettingsStripsQuotesAndWhitespace(t *testing.T) {
	s := settingsFromSource(envSource{
		"SMTP_HOST": `"smtp.example.com"`,
		"SMTP_USER": "  coach@example.com  ",
		"SMTP_PASS": "'secret'",
	})

	assert.Equal(t, "smtp.example.com", s.Host)
	assert.Equal(t, "coach@example.com", s.Username)
	assert.Equal(t, "secret", s.Password)
}

func TestSettingsGmailConveniences(t *testing.T) {
	t.Run("host inferred from account", func(t *testing.T) {
		s := settingsFromSource(envSource{
			"GMAIL_USER":         "coach@gmail.com",
			"GMAIL_APP_PASSWORD": "abcd efgh ijkl mnop",
		})

		assert.Equal(t, "smtp.gmail.com", s.Host)
		assert.Equal(t, "abcdefghijklmnop", s.Password)
		assert.Equal(t, 587, s.Port)
		assert.True(t, s.UseTLS)
		assert.True(t, s.Enabled)
	})

	t.Run("starttls forced back on", func(t *testing.T) {
		s := settingsFromSource(envSource{
			"SMTP_HOST": "smtp.gmail.com",
			"SMTP_TLS":  "0",
			"SMTP_SSL":  "0",
		})

		assert.True(t, s.UseTLS)
		assert.False(t, s.UseSSL)
	})
}

func TestSettingsHostPortSplit(t *testing.T) {
	t.Run("embedded port wins over port variables", func(t *testing.T) {
		s := settingsFromSource(envSource{
			"SMTP_HOST": "mail.example.com:2525",
			"SMTP_PORT": "465",
		})

		assert.Equal(t, "mail.example.com", s.Host)
		assert.Equal(t, 2525, s.Port)
	})

	t.Run("urls are left alone", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_HOST": "https://mail.example.com"})

		assert.Equal(t, "https://mail.example.com", s.Host)
		assert.Equal(t, 587, s.Port)
	})

	t.Run("non numeric suffix is left alone", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_HOST": "mail.example.com:submission"})

		assert.Equal(t, "mail.example.com:submission", s.Host)
	})
}

func TestSettingsPortModeReconciliation(t *testing.T) {
	t.Run("465 implies ssl", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_PORT": "465"})

		assert.True(t, s.UseSSL)
		assert.False(t, s.UseTLS)
	})

	t.Run("587 with ssl becomes starttls", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_PORT": "587", "SMTP_SSL": "1"})

		assert.False(t, s.UseSSL)
		assert.True(t, s.UseTLS)
	})

	t.Run("ssl wins when both are requested", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_PORT": "2525", "SMTP_SSL": "1", "SMTP_TLS": "1"})

		assert.True(t, s.UseSSL)
		assert.False(t, s.UseTLS)
	})

	t.Run("ssl default port is 465", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_SSL": "1"})

		assert.Equal(t, 465, s.Port)
		assert.True(t, s.UseSSL)
	})
}

func TestSettingsEnabled(t *testing.T) {
	t.Run("flag values", func(t *testing.T) {
		cases := []struct {
			value string
			want  bool
		}{
			{"1", true},
			{"true", true},
			{"YES", true},
			{"on", true},
			{"0", false},
			{"no", false},
			{"off", false},
			{"definitely", false},
		}
		for _, tc := range cases {
			t.Run(tc.value, func(t *testing.T) {
				s := settingsFromSource(envSource{"SMTP_ENABLED": tc.value})
				assert.Equal(t, tc.want, s.Enabled)
			})
		}
	})

	t.Run("credentials enable without a flag", func(t *testing.T) {
		s := settingsFromSource(envSource{
			"SMTP_HOST": "smtp.example.com",
			"SMTP_USER": "coach@example.com",
			"SMTP_PASS": "secret",
		})

		assert.True(t, s.Enabled)
	})

	t.Run("flag alone is not enough to send", func(t *testing.T) {
		s := settingsFromSource(envSource{"SMTP_ENABLED": "1"})

		assert.True(t, s.Enabled)
		assert.Equal(t, []string{"AURA_SMTP_HOST", "AURA_SMTP_USER", "AURA_SMTP_PASS"}, s.MissingFields())
	})
}

func TestSettingsMissingFields(t *testing.T) {
	s := settingsFromSource(envSource{"SMTP_USER": "coach@example.com"})
	assert.Equal(t, []string{"AURA_SMTP_HOST", "AURA_SMTP_PASS"}, s.MissingFields())

	full := settingsFromSource(envSource{
		"SMTP_HOST": "smtp.example.com",
		"SMTP_USER": "coach@example.com",
		"SMTP_PASS": "secret",
	})
	assert.Empty(t, full.MissingFields())
}

func TestSettingsFromAddress(t *testing.T) {
	assert.Equal(t, "coach@example.com",
		Settings{Username: "coach@example.com", AdminEmail: "admin@example.com"}.FromAddress())
	assert.Equal(t, "admin@example.com", Settings{AdminEmail: "admin@example.com"}.FromAddress())
	assert.Empty(t, Settings{}.FromAddress())
}
