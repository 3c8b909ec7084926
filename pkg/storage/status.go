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

package storage

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
)

// Storage modes reported by Status.
const (
	ModeLocal   = "local"
	ModeDBOK    = "db_ok"
	ModeDBError = "db_error"
)

const statusCacheKey = "storage-status"

// Status describes which backend is serving and why, for the operational
// status panel.
type Status struct {
	Mode   string `json:"mode"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Debug  string `json:"debug,omitempty"`
}

// Status probes the serving backend and reports the result. With no remote
// configured the answer is static. Probe results are reused for the status
// TTL; recording a fault elsewhere does not invalidate a previously cached
// healthy answer, the next probe after the window turns the status.
func (s *Store) Status(ctx context.Context) Status {
	if !s.RemoteEnabled() {
		return Status{
			Mode:   ModeLocal,
			Title:  "Temporary mode (local JSON)",
			Detail: "Documents live in local files and are lost on redeploy. Set DATABASE_URL (or NEON_DATABASE_URL) to store them persistently.",
		}
	}

	if s.statusCache != nil {
		if cached, ok := s.statusCache.Get(statusCacheKey); ok {
			return cached.(Status)
		}
	}

	source := s.urlSource
	if source == "" {
		source = "DATABASE_URL"
	}

	var status Status
	if err := s.remote.Ping(ctx); err != nil {
		s.recordError("status probe", err)
		detail := fmt.Sprintf("%s cannot be used right now. Serving from temporary local files.", source)
		if IsConnectionFault(err) {
			detail = fmt.Sprintf("The database behind %s is unreachable. Serving from temporary local files.", source)
		}
		status = Status{
			Mode:   ModeDBError,
			Title:  "Database connection error",
			Detail: detail,
			Debug:  errorDetail(err),
		}
	} else {
		s.clearLastError()
		status = Status{
			Mode:   ModeDBOK,
			Title:  "Database connected",
			Detail: fmt.Sprintf("Persistent storage active (%s).", source),
		}
	}

	if s.statusCache != nil {
		s.statusCache.Set(statusCacheKey, status, gocache.DefaultExpiration)
	}
	return status
}
