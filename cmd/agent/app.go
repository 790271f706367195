package main

import (
	"context"
	"fmt"
	"log/slog"

	"weatherdine/internal/adapter/llm"
	"weatherdine/internal/adapter/openmeteo"
	"weatherdine/internal/adapter/opentripmap"
	"weatherdine/internal/adapter/storage"
	"weatherdine/internal/adapter/tool"
	"weatherdine/internal/adapter/webapi"
	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/usecase"
	"weatherdine/internal/usecase/catalog"
	"weatherdine/internal/usecase/eventbus"
	"weatherdine/internal/usecase/restaurant"
	"weatherdine/internal/usecase/weather"
	"weatherdine/internal/usecase/workflow"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	weather   *weather.Service
	finder    *restaurant.Finder
	tools     *tool.Registry
	agents    *catalog.Registry
	workflows *workflow.Manager
	stores    *storage.Stores
}

// newApp wires the data sources and tools. Agents and workflows need an LLM
// and are added by initAgents.
func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		bus:    eventbus.New(log),
		stores: storage.NewStores(log, storage.WithMaxRuns(cfg.Storage.MaxRuns)),
	}

	// 1. Data sources
	geocoder := openmeteo.NewGeocoder(webapi.New("geocoding", cfg.Sources.Geocoding, log))
	forecast := openmeteo.NewForecast(webapi.New("weather", cfg.Sources.Forecast, log))
	a.weather = weather.NewService(geocoder, forecast, cfg.Sources.WeatherCacheTTL, log)

	var places domain.PlaceSource
	otm, err := opentripmap.New(webapi.New("places", cfg.Sources.OpenTripMap, log), cfg.Sources.OpenTripMap.APIKey)
	if err != nil {
		log.Warn("restaurant search disabled", "error", err)
		places = unavailablePlaces{err: err}
	} else {
		places = otm
	}
	a.finder = restaurant.NewFinder(geocoder, places, cfg.Sources.SearchRadius, log)

	// 2. Tools
	a.tools = tool.NewRegistry(log, tool.RateLimit(cfg.Agent.ToolRateLimit))
	if err := a.tools.Register(
		tool.NewWeatherTool(a.weather, log),
		tool.NewRestaurantTool(a.finder, log),
	); err != nil {
		a.Close()
		return nil, fmt.Errorf("register tool: %w", err)
	}

	return a, nil
}

// initAgents builds the agent catalog and registers the workflows.
func (a *app) initAgents() error {
	cfg, log := a.cfg, a.log

	providers, err := llm.BuildRegistry(cfg.LLM, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defs, collections, err := loadCatalog(cfg.Agent.CatalogFile)
	if err != nil {
		return err
	}
	a.agents, err = catalog.NewRegistry(defs, collections, catalog.Deps{
		Providers:       providers,
		DefaultProvider: cfg.LLM.DefaultProvider,
		SelectTools: func(names []string) (domain.ToolExecutor, error) {
			sub, err := a.tools.Subset(names)
			if err != nil {
				return nil, err
			}
			return sub, nil
		},
		OpenStore: func(path string) (domain.ConversationStore, error) {
			s, err := a.stores.Open(path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		Memory: catalog.MemoryOptions{
			Enabled:     cfg.Memory.Enabled,
			DataDir:     cfg.Memory.DataDir,
			DefaultPath: cfg.Memory.Path,
			Overrides:   cfg.Memory.Agents,
		},
		Counter:       usecase.NewTokenCounter(cfg.Agent.Window.Encoding, log),
		Bus:           a.bus,
		Logger:        log,
		MaxIterations: cfg.Agent.MaxIterations,
		Timeout:       cfg.Agent.Timeout,
		LastMessages:  cfg.Agent.Window.LastMessages,
		MaxTokens:     cfg.Agent.Window.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}

	runs, err := a.stores.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("workflow store: %w", err)
	}
	a.workflows = workflow.NewManager(runs, workflow.ManagerConfig{
		Timeout:    cfg.Workflow.Timeout,
		MaxRunning: cfg.Workflow.MaxRunning,
	}, a.bus, log)

	wfs := []workflow.Workflow{workflow.NewRestaurantWorkflow(a.weather, a.finder)}
	if weatherAgent, err := a.agents.Get(catalog.WeatherAgentID); err == nil {
		wfs = append(wfs, workflow.NewWeatherWorkflow(a.weather, weatherAgent))
	} else {
		log.Warn("weather workflow disabled", "error", err)
	}
	for _, wf := range wfs {
		if err := a.workflows.Register(wf); err != nil {
			return fmt.Errorf("register workflow %s: %w", wf.ID, err)
		}
	}

	log.Debug("agents ready",
		"agents", len(a.agents.List()),
		"workflows", len(a.workflows.List()),
		"tools", len(a.tools.List()),
	)
	return nil
}

// loadCatalog overlays the optional agents.yaml on the built-in catalog.
func loadCatalog(path string) ([]domain.AgentDefinition, []domain.AgentCollection, error) {
	f, err := catalog.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("agent catalog: %w", err)
	}
	return catalog.MergeAgents(catalog.Builtins(), f.Agents),
		catalog.MergeCollections(catalog.BuiltinCollections(), f.Collections),
		nil
}

// Close drains the event bus and closes every database.
func (a *app) Close() {
	a.bus.Close()
	if err := a.stores.Close(); err != nil {
		a.log.Warn("close stores", "error", err)
	}
}

// unavailablePlaces stands in for OpenTripMap when it is not configured, so
// restaurant lookups fail with the configuration error instead of at startup.
type unavailablePlaces struct{ err error }

func (u unavailablePlaces) Autosuggest(context.Context, domain.PlaceSearch) ([]domain.PlaceFeature, error) {
	return nil, u.err
}

func (u unavailablePlaces) Details(context.Context, string) (*domain.PlaceProperties, error) {
	return nil, u.err
}
