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
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-calistenia/aura-state/pkg/logger"
)

const (
	dialTimeout     = 10 * time.Second
	dispatchTimeout = 30 * time.Second
)

// attempt is one (port, encryption) combination for a delivery.
type attempt struct {
	port   int
	useSSL bool
	useTLS bool
}

func (a attempt) mode() string {
	switch {
	case a.useSSL:
		return "SSL"
	case a.useTLS:
		return "STARTTLS"
	}
	return "PLAIN"
}

// SMTPNotifier delivers notifications through a single SMTP account. A send
// walks a short ladder of port and encryption combinations before giving
// up, which papers over the most common misconfiguration: the right server
// with the wrong submission port.
type SMTPNotifier struct {
	settings Settings
	logger   *zap.SugaredLogger

	// send performs one delivery attempt; tests swap it out.
	send func(settings Settings, a attempt, to string, msg []byte) error

	wg       sync.WaitGroup
	errMutex sync.Mutex
	lastErr  string
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates a notifier over the given settings.
func NewSMTPNotifier(settings Settings) *SMTPNotifier {
	n := &SMTPNotifier{
		settings: settings,
		logger:   logger.For(logger.ComponentNotifier),
	}
	n.send = n.dialAndSend
	return n
}

// Notify delivers one notification. An empty destination goes to the admin
// recipient, falling back on the account itself.
func (n *SMTPNotifier) Notify(ctx context.Context, destination, kind string, payload map[string]string) error {
	if err := n.ready(); err != nil {
		return err
	}

	to := strings.TrimSpace(destination)
	if to == "" {
		to = n.settings.AdminEmail
	}
	if to == "" {
		to = n.settings.Username
	}
	if to == "" {
		return fmt.Errorf("%w: no recipient", ErrIncomplete)
	}

	subject, body := composeMessage(kind, payload)
	msg := renderMessage(n.settings, to, subject, body, payload["reply_to"])

	var lastErr error
	last := attempt{port: n.settings.Port, useSSL: n.settings.UseSSL, useTLS: n.settings.UseTLS}
	for _, a := range attemptsFor(n.settings) {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		last = a
		if err := n.send(n.settings, a, to, msg); err != nil {
			lastErr = err
			continue
		}
		n.clearLastError()
		notificationsSent.Inc()
		n.logger.Debugf("Delivered %s notification to %s", kind, maskAccount(to))
		return nil
	}

	notificationsFailed.Inc()
	err := fmt.Errorf("smtp delivery failed at %s:%d (%s): %w", n.settings.Host, last.port, last.mode(), lastErr)
	n.recordError(err)
	return err
}

// Dispatch delivers in the background and reports whether a send was
// actually started. Failures land in LastError and the log instead of the
// caller, which keeps user-facing flows from stalling on a slow mail
// server.
func (n *SMTPNotifier) Dispatch(destination, kind string, payload map[string]string) bool {
	if err := n.ready(); err != nil {
		n.logger.Debugf("Skipping %s notification: %s", kind, err)
		return false
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := n.Notify(ctx, destination, kind, payload); err != nil {
			n.logger.Warnf("Background %s notification failed: %s", kind, err)
		}
	}()
	return true
}

// Wait blocks until all in-flight background notifications are done.
func (n *SMTPNotifier) Wait() {
	n.wg.Wait()
}

// LastError returns the most recent delivery fault as "type: message", or
// "" after a successful delivery.
func (n *SMTPNotifier) LastError() string {
	n.errMutex.Lock()
	defer n.errMutex.Unlock()
	return n.lastErr
}

// Status reports the notifier configuration with the account masked and the
// password left out entirely.
func (n *SMTPNotifier) Status() Status {
	mode := "plain"
	if n.settings.UseSSL {
		mode = "ssl"
	} else if n.settings.UseTLS {
		mode = "starttls"
	}
	return Status{
		Enabled:    n.settings.Enabled,
		Host:       n.settings.Host,
		Port:       n.settings.Port,
		Username:   maskAccount(n.settings.Username),
		FromName:   n.settings.FromName,
		AdminEmail: n.settings.AdminEmail,
		Mode:       mode,
		LastError:  n.LastError(),
	}
}

func (n *SMTPNotifier) ready() error {
	if missing := n.settings.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if !n.settings.Enabled {
		return ErrDisabled
	}
	return nil
}

func (n *SMTPNotifier) recordError(err error) {
	root := err
	for {
		unwrapped := errors.Unwrap(root)
		if unwrapped == nil {
			break
		}
		root = unwrapped
	}
	n.errMutex.Lock()
	n.lastErr = fmt.Sprintf("%T: %s", root, err)
	n.errMutex.Unlock()
}

func (n *SMTPNotifier) clearLastError() {
	n.errMutex.Lock()
	n.lastErr = ""
	n.errMutex.Unlock()
}

// attemptsFor builds the delivery ladder: the configured combination first,
// then the sibling submission port, and for gmail both well-known ports.
func attemptsFor(settings Settings) []attempt {
	var attempts []attempt
	seen := map[attempt]bool{}
	add := func(a attempt) {
		if seen[a] {
			return
		}
		seen[a] = true
		attempts = append(attempts, a)
	}

	add(attempt{port: settings.Port, useSSL: settings.UseSSL, useTLS: settings.UseTLS})
	switch settings.Port {
	case 587:
		add(attempt{port: 465, useSSL: true})
	case 465:
		add(attempt{port: 587, useTLS: true})
	default:
		add(attempt{port: 587, useTLS: true})
		add(attempt{port: 465, useSSL: true})
	}
	if strings.EqualFold(settings.Host, "smtp.gmail.com") {
		add(attempt{port: 587, useTLS: true})
		add(attempt{port: 465, useSSL: true})
	}
	return attempts
}

// composeMessage renders the subject and plain-text body for a kind.
func composeMessage(kind string, payload map[string]string) (string, string) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch kind {
	case KindApplication:
		subject := fmt.Sprintf("New application - %s", get("username"))
		lines := []string{
			"A new coaching application was submitted.",
			"",
			"Username: " + get("username"),
			"Email: " + get("email"),
			"Skill: " + orDefault(get("skill"), "not given"),
			"Level: " + orDefault(get("level"), "not given"),
			"Goal: " + orDefault(get("goal"), "not given"),
			"Concerns: " + orDefault(get("concerns"), "none"),
		}
		if approve, reject := get("approve_url"), get("reject_url"); approve != "" && reject != "" {
			lines = append(lines,
				"",
				"Decide directly from this email:",
				"Approve: "+approve,
				"Reject: "+reject,
			)
			if until := get("valid_until"); until != "" {
				lines = append(lines, "Valid until: "+until)
			}
		}
		lines = append(lines, "", "Reply to this email to answer the applicant.")
		return subject, strings.Join(lines, "\n")

	case KindDecision:
		username := orDefault(get("username"), "athlete")
		if get("decision") == "approved" {
			return "Your Aura Calistenia application", fmt.Sprintf(
				"Hi %s,\n\nYour application has been accepted.\n\n"+
					"You can now sign in with your username and password and start training.\n\n"+
					"Aura Calistenia", username)
		}
		return "Your Aura Calistenia application", fmt.Sprintf(
			"Hi %s,\n\nWe reviewed your application but cannot accept it right now.\n\n"+
				"There are no open spots at the moment. Your application stays on file and "+
				"may be reconsidered later.\n\nAura Calistenia", username)

	case KindPasswordReset:
		lines := []string{
			"A password reset was requested.",
			"",
			"Username: " + get("username"),
			"Reset link: " + get("reset_url"),
		}
		if ttl := get("ttl_minutes"); ttl != "" {
			lines = append(lines, "", "The link expires in "+ttl+" minutes.")
		}
		return "Password reset - AuraCalistenia", strings.Join(lines, "\n")

	case KindTest:
		return "SMTP test - AuraCalistenia",
			"Test email sent from the admin panel.\n\nIf this arrived, the SMTP settings work."
	}

	// Unknown kinds still deliver something inspectable.
	return kind, payloadLines(payload)
}

// renderMessage assembles the RFC 822 message bytes.
func renderMessage(settings Settings, to, subject, body, replyTo string) []byte {
	var b strings.Builder
	if from := settings.FromAddress(); from != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", settings.FromName, from)
	} else {
		fmt.Fprintf(&b, "From: %s\r\n", settings.FromName)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if replyTo = strings.TrimSpace(replyTo); replyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", replyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (n *SMTPNotifier) dialAndSend(settings Settings, a attempt, to string, msg []byte) error {
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(a.port))

	var client *smtp.Client
	if a.useSSL {
		conn, err := tls.DialWithDialer(
			&net.Dialer{Timeout: dialTimeout}, "tcp", addr,
			&tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12})
		if err != nil {
			return fmt.Errorf("failed to open TLS connection to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, settings.Host)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to start SMTP session on %s: %w", addr, err)
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, settings.Host)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to start SMTP session on %s: %w", addr, err)
		}
		if a.useTLS {
			if err := client.StartTLS(&tls.Config{ServerName: settings.Host, MinVersion: tls.VersionTLS12}); err != nil {
				_ = client.Close()
				return fmt.Errorf("failed to negotiate STARTTLS with %s: %w", addr, err)
			}
		}
	}
	defer client.Close()

	if settings.Username != "" && settings.Password != "" {
		auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate against %s: %w", addr, err)
		}
	}
	from := settings.FromAddress()
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", from, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}
	return client.Quit()
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func payloadLines(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+payload[key])
	}
	return strings.Join(lines, "\n")
}
