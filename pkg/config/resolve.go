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

package config

import (
	"regexp"
	"strings"
)

// databaseURLCandidates are checked in order; the first variable that yields a
// usable value wins. Hosting platforms disagree on the variable name, so all
// known spellings are accepted.
var databaseURLCandidates = []string{
	"DATABASE_URL",
	"AURA_DATABASE_URL",
	"NEON_DATABASE_URL",
	"POSTGRES_URL",
	"POSTGRESQL_URL",
}

var psqlURLPattern = regexp.MustCompile(`(postgres(?:ql)?://[^\s'"]+)`)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DefaultTableName is the remote document table used when AURA_DB_TABLE is
// unset or invalid.
const DefaultTableName = "aura_state"

// NormalizeDatabaseURL cleans a raw connection string the way operators
// actually paste them: surrounding whitespace, one matching pair of quotes,
// and full `psql 'postgres://...'` command lines copied from a provider
// dashboard are all tolerated.
func NormalizeDatabaseURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	value = StripQuotes(value)
	if strings.HasPrefix(strings.ToLower(value), "psql ") {
		if match := psqlURLPattern.FindString(value); match != "" {
			value = strings.TrimSpace(match)
		}
	}
	return value
}

// ResolveDatabaseURL checks the candidate environment variables through lookup
// and returns the first usable connection URL together with the variable it
// came from. It returns ("", "") when no remote database is configured; that
// is a mode, not an error.
func ResolveDatabaseURL(lookup func(key string) string) (url string, source string) {
	for _, key := range databaseURLCandidates {
		cleaned := NormalizeDatabaseURL(lookup(key))
		if cleaned != "" {
			return cleaned, key
		}
	}
	return "", ""
}

// StripQuotes removes one matching pair of surrounding single or double
// quotes and trims the remainder.
func StripQuotes(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == value[len(value)-1] && (value[0] == '\'' || value[0] == '"') {
		value = strings.TrimSpace(value[1 : len(value)-1])
	}
	return value
}

// SanitizeTableName validates a table name against a strict identifier
// pattern and falls back to DefaultTableName for anything unsafe. The table
// name is the only value ever interpolated into SQL text.
func SanitizeTableName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || !tableNamePattern.MatchString(name) {
		return DefaultTableName
	}
	return name
}
