// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c2FmZQ/storage"
)

const metricsFile = "sys_metrics"

const LatencyBuckets = 101
const LatencyBucketSize = 50 * time.Millisecond

// Histogram counts request latencies in LatencyBucketSize buckets. The last
// bucket holds everything slower.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b2"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := min(int(d/LatencyBucketSize), LatencyBuckets-1)
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range LatencyBuckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Mean returns the average latency in milliseconds.
func (h *Histogram) Mean() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / float64(h.Count)
}

// ResolutionConfig defines the policy for a single RRD bucket set.
type ResolutionConfig struct {
	Name       string        `json:"name"`
	Resolution time.Duration `json:"resolution"`
	Retention  time.Duration `json:"retention"`
	Buckets    int           `json:"buckets"`
}

var DefaultResolutions = []ResolutionConfig{
	{"1m", 1 * time.Minute, 2 * time.Hour, 120},
	{"15m", 15 * time.Minute, 24 * time.Hour, 96},
	{"1h", 1 * time.Hour, 31 * 24 * time.Hour, 744},
	{"1d", 24 * time.Hour, 183 * 24 * time.Hour, 183},
}

// Point represents a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer of points.
type RingBuffer[T any] struct {
	Config ResolutionConfig `json:"config"`
	Data   []Point[T]       `json:"data"`
	Head   int              `json:"head"` // next write position
}

func NewRingBuffer[T any](cfg ResolutionConfig) *RingBuffer[T] {
	return &RingBuffer[T]{
		Config: cfg,
		Data:   make([]Point[T], cfg.Buckets),
	}
}

func (rb *RingBuffer[T]) align(timestamp int64) int64 {
	resSec := int64(rb.Config.Resolution.Seconds())
	return (timestamp / resSec) * resSec
}

// last returns the most recent point, or nil when it is not in the bucket
// of timestamp.
func (rb *RingBuffer[T]) last(timestamp int64) *Point[T] {
	p := &rb.Data[(rb.Head-1+len(rb.Data))%len(rb.Data)]
	if p.Timestamp != rb.align(timestamp) {
		return nil
	}
	return p
}

// Add appends a point, replacing the latest one if it has the same bucket.
func (rb *RingBuffer[T]) Add(timestamp int64, value T) {
	if p := rb.last(timestamp); p != nil {
		p.Value = value
		return
	}
	rb.Data[rb.Head] = Point[T]{Timestamp: rb.align(timestamp), Value: value}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := range len(rb.Data) {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// MetricSeries holds all resolutions of one gauge or counter.
type MetricSeries struct {
	Name            string                          `json:"name"`
	AggregationType string                          `json:"aggType"` // "Avg" or "Sum"
	Buffers         map[string]*RingBuffer[float64] `json:"buffers"`
	Samples         map[string]int                  `json:"samples,omitempty"`
}

func NewMetricSeries(name string, aggType string) *MetricSeries {
	if aggType == "" {
		aggType = "Avg"
	}
	ms := &MetricSeries{Name: name, AggregationType: aggType}
	ms.Hydrate()
	return ms
}

// Ingest folds value into every resolution: summed for "Sum" series,
// averaged over the samples of the bucket otherwise.
func (ms *MetricSeries) Ingest(timestamp int64, value float64) {
	for _, cfg := range DefaultResolutions {
		buf := ms.Buffers[cfg.Name]
		p := buf.last(timestamp)
		if p == nil {
			buf.Add(timestamp, value)
			ms.Samples[cfg.Name] = 1
			continue
		}
		if ms.AggregationType == "Sum" {
			p.Value += value
			continue
		}
		n := ms.Samples[cfg.Name] + 1
		p.Value = (p.Value*float64(n-1) + value) / float64(n)
		ms.Samples[cfg.Name] = n
	}
}

func (ms *MetricSeries) Hydrate() {
	if ms.Buffers == nil {
		ms.Buffers = make(map[string]*RingBuffer[float64])
	}
	if ms.Samples == nil {
		ms.Samples = make(map[string]int)
	}
	for _, cfg := range DefaultResolutions {
		if _, ok := ms.Buffers[cfg.Name]; !ok {
			ms.Buffers[cfg.Name] = NewRingBuffer[float64](cfg)
		}
	}
}

// HistogramSeries holds all resolutions of the latency histogram.
type HistogramSeries struct {
	Name    string                            `json:"name"`
	Buffers map[string]*RingBuffer[Histogram] `json:"buffers"`
}

func NewHistogramSeries(name string) *HistogramSeries {
	hs := &HistogramSeries{Name: name}
	hs.Hydrate()
	return hs
}

func (hs *HistogramSeries) Ingest(timestamp int64, h *Histogram) {
	if h == nil {
		return
	}
	for _, cfg := range DefaultResolutions {
		buf := hs.Buffers[cfg.Name]
		if p := buf.last(timestamp); p != nil {
			p.Value.Merge(h)
			continue
		}
		buf.Add(timestamp, *h)
	}
}

func (hs *HistogramSeries) Hydrate() {
	if hs.Buffers == nil {
		hs.Buffers = make(map[string]*RingBuffer[Histogram])
	}
	for _, cfg := range DefaultResolutions {
		if _, ok := hs.Buffers[cfg.Name]; !ok {
			hs.Buffers[cfg.Name] = NewRingBuffer[Histogram](cfg)
		}
	}
}

// Sample is one reading of the server's counters.
type Sample struct {
	Timestamp   int64      `json:"timestamp"`
	RPS         float64    `json:"rps"`
	ActiveWS    int        `json:"activeWS"`
	Commands    int        `json:"commands"`
	Latency     *Histogram `json:"latency,omitempty"`
	Games       int        `json:"games"`
	Teams       int        `json:"teams"`
	Tournaments int        `json:"tournaments"`
}

// MetricsStore is the persisted time series of the server.
type MetricsStore struct {
	Series     map[string]*MetricSeries `json:"series"`
	Latency    *HistogramSeries         `json:"latency"`
	LastUpdate int64                    `json:"lastUpdate"`
}

func NewMetricsStore() *MetricsStore {
	s := &MetricsStore{}
	s.Hydrate()
	return s
}

func (s *MetricsStore) series(name, aggType string) *MetricSeries {
	if _, ok := s.Series[name]; !ok {
		s.Series[name] = NewMetricSeries(name, aggType)
	}
	return s.Series[name]
}

// Ingest records one sample in every series.
func (s *MetricsStore) Ingest(p Sample) {
	s.LastUpdate = p.Timestamp
	s.series("rps", "Avg").Ingest(p.Timestamp, p.RPS)
	s.series("ws", "Avg").Ingest(p.Timestamp, float64(p.ActiveWS))
	s.series("commands", "Sum").Ingest(p.Timestamp, float64(p.Commands))
	s.series("totalGames", "Avg").Ingest(p.Timestamp, float64(p.Games))
	s.series("totalTeams", "Avg").Ingest(p.Timestamp, float64(p.Teams))
	s.series("totalTournaments", "Avg").Ingest(p.Timestamp, float64(p.Tournaments))
	s.Latency.Ingest(p.Timestamp, p.Latency)
}

func (s *MetricsStore) Hydrate() {
	if s.Series == nil {
		s.Series = make(map[string]*MetricSeries)
	}
	for _, series := range s.Series {
		series.Hydrate()
	}
	if s.Latency == nil {
		s.Latency = NewHistogramSeries("latency")
	}
	s.Latency.Hydrate()
}

// Monitor accumulates request and game activity and samples it into a
// MetricsStore at a fixed interval. A nil *Monitor records nothing.
type Monitor struct {
	storage  *storage.Storage
	registry *Registry

	requests atomic.Uint64
	commands atomic.Uint64
	activeWS atomic.Int64

	mu        sync.Mutex
	latency   Histogram
	lastFlush time.Time
	store     *MetricsStore

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor returns a monitor that persists its series in s.
func NewMonitor(s *storage.Storage, r *Registry) *Monitor {
	m := &Monitor{
		storage:   s,
		registry:  r,
		lastFlush: time.Now(),
		store:     NewMetricsStore(),
		stopChan:  make(chan struct{}),
	}
	if s != nil {
		var stored MetricsStore
		if err := s.ReadDataFile(metricsFile, &stored); err == nil {
			stored.Hydrate()
			m.store = &stored
		} else if !os.IsNotExist(err) {
			log.Printf("[METRICS] Error loading metrics: %v", err)
		}
	}
	return m
}

// Observe records the latency of one HTTP request.
func (m *Monitor) Observe(d time.Duration) {
	if m == nil {
		return
	}
	m.requests.Add(1)
	m.mu.Lock()
	m.latency.Add(d)
	m.mu.Unlock()
}

func (m *Monitor) commandApplied() {
	if m != nil {
		m.commands.Add(1)
	}
}

func (m *Monitor) wsOpened() {
	if m != nil {
		m.activeWS.Add(1)
	}
}

func (m *Monitor) wsClosed() {
	if m != nil {
		m.activeWS.Add(-1)
	}
}

// ActiveWS returns the number of open websocket connections.
func (m *Monitor) ActiveWS() int {
	if m == nil {
		return 0
	}
	return int(m.activeWS.Load())
}

// Sample drains the accumulators into the store and persists it.
func (m *Monitor) Sample() Sample {
	now := time.Now()
	m.mu.Lock()
	latency := m.latency
	m.latency = Histogram{}
	elapsed := now.Sub(m.lastFlush).Seconds()
	m.lastFlush = now
	m.mu.Unlock()

	p := Sample{
		Timestamp: now.Unix(),
		ActiveWS:  m.ActiveWS(),
		Commands:  int(m.commands.Swap(0)),
		Latency:   &latency,
	}
	if reqs := m.requests.Swap(0); elapsed > 0 {
		p.RPS = float64(reqs) / elapsed
	}
	if m.registry != nil {
		p.Games = m.registry.CountTotalGames()
		p.Teams = m.registry.CountTotalTeams()
		p.Tournaments = m.registry.CountTotalTournaments()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Ingest(p)
	if m.storage != nil {
		if err := m.storage.SaveDataFile(metricsFile, m.store); err != nil {
			log.Printf("[METRICS] Error saving metrics: %v", err)
		}
	}
	return p
}

// Start samples every interval until Stop is called.
func (m *Monitor) Start(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sample()
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop ends sampling and records a final sample.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
		m.Sample()
	})
}

// MarshalJSON renders the stored series.
func (m *Monitor) MarshalJSON() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.store)
}

// metricsMiddleware times every request.
func metricsMiddleware(m *Monitor, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.Observe(time.Since(start))
	})
}
