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

// Package notify sends the transactional emails behind the coaching flows.
// Delivery is best effort: a notification either goes out now or it is
// reported as failed, there is no queue and no retry beyond the port
// fallback of a single send.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Notification kinds.
const (
	KindApplication   = "application"
	KindDecision      = "application_decision"
	KindPasswordReset = "password_reset"
	KindTest          = "smtp_test"
)

var (
	// ErrDisabled is returned when notifications are switched off.
	ErrDisabled = errors.New("smtp notifications are disabled")
	// ErrIncomplete is returned when required SMTP settings are missing.
	ErrIncomplete = errors.New("smtp settings are incomplete")
)

// Notifier delivers one notification of the given kind to destination. An
// empty destination falls back to the configured admin recipient.
type Notifier interface {
	Notify(ctx context.Context, destination, kind string, payload map[string]string) error
}

// Status describes the notifier for the operational status panel. The
// password never appears; the account is masked.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	FromName   string `json:"from_name"`
	AdminEmail string `json:"admin_email"`
	Mode       string `json:"mode"`
	LastError  string `json:"last_error,omitempty"`
}

// maskAccount hides most of an account name, keeping enough to recognize
// which one is configured.
func maskAccount(value string) string {
	if value == "" {
		return ""
	}
	local := value
	domain := ""
	if at := strings.Index(value, "@"); at >= 0 {
		local, domain = value[:at], value[at:]
	}
	switch {
	case len(local) > 2:
		local = local[:2]
	case len(local) > 1:
		local = local[:1]
	}
	return local + "***" + domain
}
