package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/datetime"
	"github.com/tartampluch/icaltz/internal/engine"
	"github.com/tartampluch/icaltz/internal/zone"
	"github.com/tartampluch/icaltz/internal/zonedb"
)

// cacheItem stores the rendered zone calendar and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

// ZoneServer exposes the resolver and the zone database over HTTP.
type ZoneServer struct {
	// cache uses atomic.Pointer for lock-free reads: the zone calendar is
	// read on every request and only rebuilt by Refresh.
	cache atomic.Pointer[cacheItem]

	Listen   string
	resolver *engine.Resolver
	zones    zonedb.Lister

	registry    *prometheus.Registry
	resolutions *prometheus.CounterVec
}

// NewZoneServer creates a server resolving with r and publishing zones.
// Metrics are kept in a registry private to the server.
func NewZoneServer(listen string, r *engine.Resolver, zones zonedb.Lister) *ZoneServer {
	reg := prometheus.NewRegistry()
	return &ZoneServer{
		Listen:   listen,
		resolver: r,
		zones:    zones,
		registry: reg,
		resolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: config.MetricNamespace,
			Name:      config.MetricResolutions,
			Help:      config.MetricResolutionsHp,
		}, []string{config.MetricLabelOutcome}),
	}
}

// Handler returns the routes served by the server.
func (s *ZoneServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(config.RouteResolve, s.handleResolve)
	mux.HandleFunc(config.RouteZones, s.handleZones)
	mux.Handle(config.RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start renders the zone calendar, then serves HTTP until the context is
// cancelled.
func (s *ZoneServer) Start(ctx context.Context) error {
	if s.Listen == "" {
		return errors.New(config.ErrListenRequired)
	}
	if err := s.Refresh(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         s.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyListen, s.Listen,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// Refresh re-renders the zone calendar from the zone list.
func (s *ZoneServer) Refresh() error {
	var zones []zone.Timezone
	if s.zones != nil {
		zones = s.zones.Zones()
	}
	var buf bytes.Buffer
	if err := zonedb.Encode(&buf, zones); err != nil {
		return err
	}
	s.Update(buf.Bytes())
	return nil
}

// Update atomically replaces the served zone calendar.
func (s *ZoneServer) Update(data []byte) {
	hash := sha256.Sum256(data)
	etag := fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:]))

	s.cache.Store(&cacheItem{
		data:         data,
		etag:         etag,
		lastModified: time.Now().UTC().Format(http.TimeFormat),
	})

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, etag,
	)
}

// resolveResponse is the JSON body of /resolve.
type resolveResponse struct {
	Value        string `json:"value"`
	Zone         string `json:"zone,omitempty"`
	Local        string `json:"local,omitempty"`
	UTC          string `json:"utc,omitempty"`
	Offset       string `json:"offset,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
	DST          bool   `json:"dst"`
	Kind         string `json:"kind,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newResolveResponse(value string, inst zone.ResolvedInstant) resolveResponse {
	abbr, _ := inst.Time.Zone()
	return resolveResponse{
		Value:        value,
		Zone:         inst.ZoneID,
		Local:        inst.Time.Format(time.RFC3339),
		UTC:          inst.Time.UTC().Format(time.RFC3339),
		Offset:       inst.Time.Format(config.OffsetFormatDisplay),
		Abbreviation: abbr,
		DST:          inst.DST,
		Kind:         inst.Kind.String(),
	}
}

// handleResolve resolves the value query parameter. The zone and policy
// parameters override the server defaults for one request.
func (s *ZoneServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r) {
		return
	}

	q := r.URL.Query()
	value := q.Get(config.QueryValue)
	if value == "" {
		http.Error(w, config.HTTPMsgMissingValue, http.StatusBadRequest)
		return
	}

	resolver := *s.resolver
	if id := q.Get(config.QueryZone); id != "" {
		resolver.Target = id
	}
	if name := q.Get(config.QueryPolicy); name != "" {
		p, err := zone.ParsePolicy(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resolver.Policy = p
	}

	inst, err := resolver.Resolve(r.Context(), value)
	res := engine.Result{Input: value, Instant: inst, Err: err}
	s.resolutions.WithLabelValues(res.Outcome()).Inc()

	status := http.StatusOK
	body := resolveResponse{Value: value}
	if err != nil {
		status = statusFor(err)
		body.Error = err.Error()
	} else {
		body = newResolveResponse(value, inst)
	}

	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.WriteHeader(status)
	if r.Method == http.MethodGet {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}

// statusFor maps resolution errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datetime.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, zonedb.ErrUnknownZone):
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleZones serves the VTIMEZONE calendar with HTTP caching support.
func (s *ZoneServer) handleZones(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r) {
		return
	}

	item := s.cache.Load()
	if item == nil {
		if err := s.Refresh(); err != nil {
			slog.Error(config.ErrICalEncode,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
			http.Error(w, config.HTTPMsgInternalErr, http.StatusInternalServerError)
			return
		}
		item = s.cache.Load()
	}

	w.Header().Set(config.HeaderContentType, config.MimeTextCalendar)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match == item.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if since := r.Header.Get(config.HeaderIfModifiedSince); since != "" {
		if clientTime, err := time.Parse(http.TimeFormat, since); err == nil {
			if serverTime, err := time.Parse(http.TimeFormat, item.lastModified); err == nil {
				if !serverTime.After(clientTime) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}
	}

	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}

// allowMethod accepts GET and HEAD only.
func allowMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set(config.HeaderAllow, config.AllowedMethods)
	http.Error(w, config.HTTPMsgMethodNotAll, http.StatusMethodNotAllowed)
	return false
}
