// Package restaurant implements weather-aware restaurant search on top of
// the geocoding and place directory ports.
package restaurant

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

// MaxResults is the upper bound accepted for RestaurantQuery.MaxResults.
const MaxResults = 20

// Finder resolves a location and returns nearby restaurants.
type Finder struct {
	geocoder domain.Geocoder
	places   domain.PlaceSource
	radiusM  int
	logger   *slog.Logger
}

// NewFinder creates a Finder. radiusM <= 0 uses the place source default.
func NewFinder(geocoder domain.Geocoder, places domain.PlaceSource, radiusM int, logger *slog.Logger) *Finder {
	return &Finder{geocoder: geocoder, places: places, radiusM: radiusM, logger: logger}
}

// Find geocodes q.Location, looks up restaurants around it, fetches every
// restaurant's details in parallel and filters by cuisine. A single failed
// detail lookup aborts the whole search.
func (f *Finder) Find(ctx context.Context, q domain.RestaurantQuery) (*domain.RestaurantSearchResult, error) {
	ctx, span := tracer.StartSpan(ctx, "restaurant.find")
	defer span.End()

	limit := q.MaxResults
	if limit <= 0 {
		limit = domain.DefaultRestaurantResults
	}
	if limit > MaxResults {
		limit = MaxResults
	}
	span.SetAttributes(
		tracer.StringAttr("restaurant.location", q.Location),
		tracer.IntAttr("restaurant.limit", limit),
	)

	loc, err := f.geocoder.Search(ctx, q.Location)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.CoordinateAttrs(loc.Coordinates.Latitude, loc.Coordinates.Longitude)...)

	features, err := f.places.Autosuggest(ctx, domain.PlaceSearch{
		Kind:    "restaurant",
		Center:  loc.Coordinates,
		RadiusM: f.radiusM,
		Limit:   limit,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(features) > limit {
		features = features[:limit]
	}

	recommendation := ""
	if q.ConsiderWeather && q.WeatherConditions != "" {
		recommendation = domain.WeatherRecommendation(q.WeatherConditions)
	}

	// Each goroutine owns one slot, so order follows the search results.
	restaurants := make([]domain.Restaurant, len(features))
	g, gctx := errgroup.WithContext(ctx)
	for i, feat := range features {
		g.Go(func() error {
			details, err := f.places.Details(gctx, feat.Properties.XID)
			if err != nil {
				return err
			}
			restaurants[i] = toRestaurant(loc.Coordinates, feat, *details, recommendation)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	filtered := filterByCuisine(restaurants, q.Cuisine)

	f.logger.Debug("restaurant search completed",
		"location", loc.Name,
		"found", len(restaurants),
		"matched", len(filtered),
	)
	span.SetAttributes(tracer.IntAttr("restaurant.found", len(filtered)))
	tracer.SetOK(span)

	return &domain.RestaurantSearchResult{
		Restaurants: filtered,
		Location:    loc.Name,
		TotalFound:  len(filtered),
	}, nil
}

func toRestaurant(origin domain.Coordinates, feat domain.PlaceFeature, details domain.PlaceProperties, recommendation string) domain.Restaurant {
	p := feat.Properties.Merge(details)
	distance := domain.RoundTo(domain.Haversine(origin, feat.Coordinates), 2)
	return domain.Restaurant{
		Name:                  p.Name,
		Address:               p.Address(),
		Cuisine:               p.Cuisine,
		Phone:                 p.Phone,
		Website:               p.Website,
		Rating:                p.Rating,
		PriceRange:            p.PriceRange,
		OpeningHours:          p.OpeningHours,
		Distance:              &distance,
		WeatherRecommendation: recommendation,
	}
}

func filterByCuisine(restaurants []domain.Restaurant, cuisine string) []domain.Restaurant {
	cuisine = strings.ToLower(strings.TrimSpace(cuisine))
	if cuisine == "" {
		return restaurants
	}
	out := make([]domain.Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		if r.Cuisine != "" && strings.Contains(strings.ToLower(r.Cuisine), cuisine) {
			out = append(out, r)
		}
	}
	return out
}
