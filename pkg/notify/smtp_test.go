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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		Enabled:    true,
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "coach@example.com",
		Password:   "secret",
		FromName:   DefaultFromName,
		AdminEmail: "admin@example.com",
		UseTLS:     true,
	}
}

func newTestNotifier(settings Settings, send func(Settings, attempt, string, []byte) error) *SMTPNotifier {
	n := NewSMTPNotifier(settings)
	n.send = send
	return n
}

type dialFailure struct{}

func (e *dialFailure) Error() string { return "connection refused" }

func TestNotifyDeliversOnFirstAttempt(t *testing.T) {
	var (
		attempts []attempt
		to       []string
		messages []string
	)
	n := newTestNotifier(testSettings(), func(_ Settings, a attempt, dest string, msg []byte) error {
		attempts = append(attempts, a)
		to = append(to, dest)
		messages = append(messages, string(msg))
		return nil
	})

	err := n.Notify(context.Background(), "athlete@example.com", KindTest, nil)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, attempt{port: 587, useTLS: true}, attempts[0])
	assert.Equal(t, "athlete@example.com", to[0])
	assert.Empty(t, n.LastError())

	msg := messages[0]
	assert.Contains(t, msg, "From: AuraCalistenia <coach@example.com>\r\n")
	assert.Contains(t, msg, "To: athlete@example.com\r\n")
	assert.Contains(t, msg, "Subject: SMTP test - AuraCalistenia\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
}

func TestNotifyFallsBackToSiblingPort(t *testing.T) {
	var ports []int
	n := newTestNotifier(testSettings(), func(_ Settings, a attempt, _ string, _ []byte) error {
		ports = append(ports, a.port)
		if a.port == 587 {
			return errors.New("connection refused")
		}
		return nil
	})

	err := n.Notify(context.Background(), "athlete@example.com", KindTest, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{587, 465}, ports)
	assert.Empty(t, n.LastError())
}

func TestNotifyReportsExhaustedAttempts(t *testing.T) {
	n := newTestNotifier(testSettings(), func(Settings, attempt, string, []byte) error {
		return &dialFailure{}
	})

	err := n.Notify(context.Background(), "athlete@example.com", KindTest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.example.com:465")
	assert.Contains(t, err.Error(), "(SSL)")
	assert.Contains(t, n.LastError(), "*notify.dialFailure: ")
	assert.Contains(t, n.LastError(), "connection refused")
}

func TestNotifySuccessClearsLastError(t *testing.T) {
	failing := true
	n := newTestNotifier(testSettings(), func(Settings, attempt, string, []byte) error {
		if failing {
			return errors.New("boom")
		}
		return nil
	})

	require.Error(t, n.Notify(context.Background(), "athlete@example.com", KindTest, nil))
	require.NotEmpty(t, n.LastError())

	failing = false
	require.NoError(t, n.Notify(context.Background(), "athlete@example.com", KindTest, nil))
	assert.Empty(t, n.LastError())
}

func TestNotifyDisabled(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	called := false
	n := newTestNotifier(settings, func(Settings, attempt, string, []byte) error {
		called = true
		return nil
	})

	err := n.Notify(context.Background(), "athlete@example.com", KindTest, nil)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, called)
}

func TestNotifyIncompleteSettings(t *testing.T) {
	settings := testSettings()
	settings.Password = ""
	n := newTestNotifier(settings, func(Settings, attempt, string, []byte) error {
		return nil
	})

	err := n.Notify(context.Background(), "athlete@example.com", KindTest, nil)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "AURA_SMTP_PASS")
}

func TestNotifyDestinationFallback(t *testing.T) {
	t.Run("admin recipient", func(t *testing.T) {
		var to []string
		n := newTestNotifier(testSettings(), func(_ Settings, _ attempt, dest string, _ []byte) error {
			to = append(to, dest)
			return nil
		})

		require.NoError(t, n.Notify(context.Background(), "", KindApplication, nil))
		require.NoError(t, n.Notify(context.Background(), "   ", KindApplication, nil))
		assert.Equal(t, []string{"admin@example.com", "admin@example.com"}, to)
	})

	t.Run("account itself", func(t *testing.T) {
		settings := testSettings()
		settings.AdminEmail = ""
		var to []string
		n := newTestNotifier(settings, func(_ Settings, _ attempt, dest string, _ []byte) error {
			to = append(to, dest)
			return nil
		})

		require.NoError(t, n.Notify(context.Background(), "", KindApplication, nil))
		assert.Equal(t, []string{"coach@example.com"}, to)
	})
}

func TestNotifyCancelledContext(t *testing.T) {
	sends := 0
	n := newTestNotifier(testSettings(), func(Settings, attempt, string, []byte) error {
		sends++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Notify(ctx, "athlete@example.com", KindTest, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sends)
}

func TestDispatchRunsInBackground(t *testing.T) {
	var (
		mutex sync.Mutex
		count int
	)
	n := newTestNotifier(testSettings(), func(Settings, attempt, string, []byte) error {
		mutex.Lock()
		count++
		mutex.Unlock()
		return nil
	})

	started := n.Dispatch("athlete@example.com", KindDecision, map[string]string{"decision": "approved"})
	require.True(t, started)
	n.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, 1, count)
}

func TestDispatchSkipsWhenNotReady(t *testing.T) {
	settings := testSettings()
	settings.Enabled = false
	n := newTestNotifier(settings, func(Settings, attempt, string, []byte) error {
		t.Error("send should not run")
		return nil
	})

	assert.False(t, n.Dispatch("athlete@example.com", KindTest, nil))
	n.Wait()
}

func TestAttemptLadder(t *testing.T) {
	cases := map[string]struct {
		settings Settings
		want     []attempt
	}{
		"587 starttls": {
			settings: Settings{Host: "mail.example.com", Port: 587, UseTLS: true},
			want:     []attempt{{port: 587, useTLS: true}, {port: 465, useSSL: true}},
		},
		"465 ssl": {
			settings: Settings{Host: "mail.example.com", Port: 465, UseSSL: true},
			want:     []attempt{{port: 465, useSSL: true}, {port: 587, useTLS: true}},
		},
		"unusual port tries both well known ports": {
			settings: Settings{Host: "mail.example.com", Port: 2525},
			want:     []attempt{{port: 2525}, {port: 587, useTLS: true}, {port: 465, useSSL: true}},
		},
		"gmail does not duplicate attempts": {
			settings: Settings{Host: "smtp.gmail.com", Port: 587, UseTLS: true},
			want:     []attempt{{port: 587, useTLS: true}, {port: 465, useSSL: true}},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, attemptsFor(tc.settings))
		})
	}
}

func TestComposeMessage(t *testing.T) {
	t.Run("application", func(t *testing.T) {
		subject, body := composeMessage(KindApplication, map[string]string{
			"username":    "monica",
			"email":       "monica@example.com",
			"skill":       "muscle-up",
			"goal":        "first strict rep",
			"approve_url": "https://aura.example/review/abc?d=approve",
			"reject_url":  "https://aura.example/review/abc?d=reject",
			"valid_until": "2025-06-08",
		})

		assert.Equal(t, "New application - monica", subject)
		assert.Contains(t, body, "Username: monica")
		assert.Contains(t, body, "Email: monica@example.com")
		assert.Contains(t, body, "Skill: muscle-up")
		assert.Contains(t, body, "Level: not given")
		assert.Contains(t, body, "Concerns: none")
		assert.Contains(t, body, "Approve: https://aura.example/review/abc?d=approve")
		assert.Contains(t, body, "Reject: https://aura.example/review/abc?d=reject")
		assert.Contains(t, body, "Valid until: 2025-06-08")
	})

	t.Run("application without review links", func(t *testing.T) {
		_, body := composeMessage(KindApplication, map[string]string{"username": "monica"})

		assert.NotContains(t, body, "Decide directly")
		assert.NotContains(t, body, "Approve:")
	})

	t.Run("decision approved", func(t *testing.T) {
		subject, body := composeMessage(KindDecision, map[string]string{
			"username": "monica",
			"decision": "approved",
		})

		assert.Equal(t, "Your Aura Calistenia application", subject)
		assert.Contains(t, body, "Hi monica,")
		assert.Contains(t, body, "has been accepted")
	})

	t.Run("decision rejected", func(t *testing.T) {
		_, body := composeMessage(KindDecision, map[string]string{
			"username": "monica",
			"decision": "rejected",
		})

		assert.Contains(t, body, "cannot accept it right now")
	})

	t.Run("password reset", func(t *testing.T) {
		subject, body := composeMessage(KindPasswordReset, map[string]string{
			"username":    "monica",
			"reset_url":   "https://aura.example/reset/xyz",
			"ttl_minutes": "45",
		})

		assert.Equal(t, "Password reset - AuraCalistenia", subject)
		assert.Contains(t, body, "Reset link: https://aura.example/reset/xyz")
		assert.Contains(t, body, "expires in 45 minutes")
	})

	t.Run("unknown kind dumps the payload", func(t *testing.T) {
		subject, body := composeMessage("welcome_back", map[string]string{
			"b": "two",
			"a": "one",
		})

		assert.Equal(t, "welcome_back", subject)
		assert.Equal(t, "a: one\nb: two", body)
	})
}

func TestRenderMessage(t *testing.T) {
	msg := string(renderMessage(testSettings(), "athlete@example.com", "Hello", "line one\nline two", "applicant@example.com"))

	assert.Contains(t, msg, "Reply-To: applicant@example.com\r\n")
	assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two\r\n")

	plain := string(renderMessage(Settings{FromName: DefaultFromName}, "x@example.com", "Hello", "body", ""))
	assert.Contains(t, plain, "From: AuraCalistenia\r\n")
	assert.NotContains(t, plain, "Reply-To:")
}

func TestStatusMasksAccount(t *testing.T) {
	n := NewSMTPNotifier(testSettings())

	status := n.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, "smtp.example.com", status.Host)
	assert.Equal(t, 587, status.Port)
	assert.Equal(t, "co***@example.com", status.Username)
	assert.Equal(t, "starttls", status.Mode)
	assert.Empty(t, status.LastError)
}

func TestMaskAccount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"coach@example.com", "co***@example.com"},
		{"ab@example.com", "a***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"root", "ro***"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, maskAccount(tc.in))
	}
}
