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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurastate_document_loads_total",
			Help: "The total number of document loads served by the store",
		},
	)
	documentCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurastate_document_cache_hits_total",
			Help: "The number of document loads answered from the cache",
		},
	)
	documentSaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurastate_document_saves_total",
			Help: "The total number of document saves",
		},
	)
	remoteFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurastate_remote_faults_total",
			Help: "The number of remote operations that failed and fell back to local",
		},
	)
	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurastate_cache_entries",
			Help: "The number of entries currently held by the document cache",
		},
	)
)
