// Package weather resolves a place name to current conditions and caches
// the answer for a short while.
package weather

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

const (
	defaultCacheTTL = 10 * time.Minute
	maxCacheEntries = 100
)

type cacheEntry struct {
	report    domain.WeatherReport
	expiresAt time.Time
}

// Service geocodes a location and fetches its current weather.
type Service struct {
	geocoder domain.Geocoder
	source   domain.WeatherSource
	ttl      time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService creates a weather Service. ttl <= 0 uses the 10 minute default.
func NewService(geocoder domain.Geocoder, source domain.WeatherSource, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		geocoder: geocoder,
		source:   source,
		ttl:      ttl,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Current returns the weather for location. Report.Location carries the
// geocoded display name.
func (s *Service) Current(ctx context.Context, location string) (*domain.WeatherReport, error) {
	ctx, span := tracer.StartSpan(ctx, "weather.current")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("weather.location", location))

	key := strings.ToLower(strings.TrimSpace(location))
	if r, ok := s.getCached(key); ok {
		s.logger.Debug("weather cache hit", "location", location)
		span.SetAttributes(tracer.StringAttr("weather.cache", "hit"))
		tracer.SetOK(span)
		return &r, nil
	}

	loc, err := s.geocoder.Search(ctx, location)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.CoordinateAttrs(loc.Coordinates.Latitude, loc.Coordinates.Longitude)...)
	report, err := s.source.Current(ctx, loc.Coordinates)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	report.Location = loc.Name

	s.putCache(key, *report)
	s.logger.Debug("weather fetched", "location", loc.Name, "conditions", report.Conditions)
	tracer.SetOK(span)
	return report, nil
}

func (s *Service) getCached(key string) (domain.WeatherReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		return domain.WeatherReport{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.cache, key)
		return domain.WeatherReport{}, false
	}
	return entry.report, true
}

func (s *Service) putCache(key string, r domain.WeatherReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cache[key] = cacheEntry{report: r, expiresAt: now.Add(s.ttl)}

	if len(s.cache) > maxCacheEntries {
		for k, v := range s.cache {
			if now.After(v.expiresAt) {
				delete(s.cache, k)
			}
		}
	}
}
