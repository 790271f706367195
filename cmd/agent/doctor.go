package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"weatherdine/internal/infra/config"
)

type severity string

const (
	sevOK   severity = "ok"
	sevWarn severity = "warn"
	sevFail severity = "fail"
)

// finding is what one doctor check reports.
type finding struct {
	sev severity
	msg string
	fix string
}

func ok(format string, args ...any) finding {
	return finding{sev: sevOK, msg: fmt.Sprintf(format, args...)}
}

func warn(format string, args ...any) finding {
	return finding{sev: sevWarn, msg: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) finding {
	return finding{sev: sevFail, msg: fmt.Sprintf(format, args...)}
}

func (f finding) withFix(format string, args ...any) finding {
	f.fix = fmt.Sprintf(format, args...)
	return f
}

type doctorCheck struct {
	name string
	run  func(*config.Config) finding
}

// doctorChecks run against a loaded config. The config file itself is
// checked first, separately.
var doctorChecks = []doctorCheck{
	{"LLM credentials", checkLLMCredentials},
	{"LLM endpoint", checkLLMEndpoint},
	{"Conversation store", checkConversationDir},
	{"Workflow store", checkWorkflowStore},
	{"Restaurant search", checkOpenTripMapKey},
	{"Weather sources", checkWeatherSources},
	{"Gateway exposure", checkGatewayExposure},
}

func runDoctor() error {
	return doctor(os.Stdout, configPath())
}

// doctor prints one line per check to w and fails when any check fails.
// Checks that need a config are reported as failed when it does not load.
func doctor(w io.Writer, cfgPath string) error {
	cfg, loadErr := config.Load(cfgPath)

	fmt.Fprintf(w, "weatherdine doctor (%s)\n\n", cfgPath)
	counts := map[severity]int{}
	report := func(name string, f finding) {
		counts[f.sev]++
		fmt.Fprintf(w, "  %-5s %-20s %s\n", strings.ToUpper(string(f.sev)), name, f.msg)
		if f.fix != "" {
			fmt.Fprintf(w, "        %-20s fix: %s\n", "", f.fix)
		}
	}

	report("Config file", checkConfigFile(cfgPath, loadErr))
	for _, c := range doctorChecks {
		if cfg == nil {
			report(c.name, fail("skipped, config did not load"))
			continue
		}
		report(c.name, c.run(cfg))
	}

	fmt.Fprintf(w, "\n%d ok, %d warnings, %d failed\n", counts[sevOK], counts[sevWarn], counts[sevFail])
	if n := counts[sevFail]; n > 0 {
		return fmt.Errorf("%d check(s) failed", n)
	}
	return nil
}

// checkConfigFile treats a missing file as a warning since defaults apply.
func checkConfigFile(path string, loadErr error) finding {
	if loadErr != nil {
		return fail("%v", loadErr).withFix("check %s and the WEATHERDINE_* environment", path)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return warn("no file at %s, running on defaults", path).
			withFix("create config.yaml or pass --config / WEATHERDINE_CONFIG")
	}
	return ok("loaded %s", path)
}

// Provider types that authenticate without an API key.
var keylessProviders = map[string]bool{"ollama": true, "bedrock": true}

func checkLLMCredentials(cfg *config.Config) finding {
	if len(cfg.LLM.Providers) == 0 {
		return fail("no providers under llm.providers").withFix("configure at least one provider")
	}
	var have, missing []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" || keylessProviders[p.Type] {
			have = append(have, p.Name)
		} else {
			missing = append(missing, p.Name)
		}
	}
	switch {
	case len(have) == 0:
		return fail("no API key for %s", strings.Join(missing, ", ")).
			withFix("set OPENAI_API_KEY or WEATHERDINE_LLM_PROVIDER_<NAME>_API_KEY")
	case len(missing) > 0:
		return warn("ready: %s; missing key: %s", strings.Join(have, ", "), strings.Join(missing, ", "))
	default:
		return ok("ready: %s", strings.Join(have, ", "))
	}
}

func checkLLMEndpoint(cfg *config.Config) finding {
	p := cfg.LLM.Provider(cfg.LLM.DefaultProvider)
	if p == nil {
		return fail("default provider %q is not configured", cfg.LLM.DefaultProvider)
	}
	if p.APIKey == "" && !keylessProviders[p.Type] {
		return warn("skipped, %s has no API key", p.Name)
	}
	url := providerEndpoint(*p)
	if url == "" {
		return warn("no probe URL for provider type %q", p.Type)
	}
	latency, err := probe(url, 10*time.Second)
	if err != nil {
		return fail("%s unreachable: %v", url, err).withFix("check network access and llm.providers[].base_url")
	}
	return ok("%s answered in %dms", p.Name, latency.Milliseconds())
}

// providerEndpoint picks a URL that answers without a request body. Any
// HTTP status proves the host is reachable.
func providerEndpoint(p config.ProviderConfig) string {
	base := strings.TrimRight(p.BaseURL, "/")
	switch p.Type {
	case "", "openai":
		if base == "" {
			return "https://api.openai.com/v1/models"
		}
	case "openrouter":
		if base == "" {
			return "https://openrouter.ai/api/v1/models"
		}
	case "ollama":
		if base == "" {
			base = "http://localhost:11434"
		}
		return base + "/api/tags"
	case "bedrock":
		if p.Region == "" {
			return ""
		}
		return "https://bedrock-runtime." + p.Region + ".amazonaws.com/"
	default:
		return ""
	}
	return base
}

func probe(url string, timeout time.Duration) (time.Duration, error) {
	client := &http.Client{Timeout: timeout}
	start := time.Now()
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start), nil
}

func checkConversationDir(cfg *config.Config) finding {
	if !cfg.Memory.Enabled {
		return ok("conversation memory disabled")
	}
	return writableDir(cfg.Memory.DataDir)
}

func checkWorkflowStore(cfg *config.Config) finding {
	if cfg.Storage.Path == ":memory:" {
		return warn("runs are kept in memory and lost on exit")
	}
	return writableDir(filepath.Dir(cfg.Storage.Path))
}

// writableDir creates dir when missing and proves it accepts a file.
func writableDir(dir string) finding {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fail("bad path %q: %v", dir, err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return fail("%s is not a directory", abs)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return fail("cannot create %s: %v", abs, err).withFix("mkdir -p %s", abs)
	}
	probeFile := filepath.Join(abs, ".doctor")
	if err := os.WriteFile(probeFile, nil, 0o600); err != nil {
		return fail("%s is not writable: %v", abs, err).withFix("chmod 700 %s", abs)
	}
	os.Remove(probeFile)
	return ok("%s is writable", abs)
}

func checkOpenTripMapKey(cfg *config.Config) finding {
	if cfg.Sources.OpenTripMap.APIKey == "" {
		return warn("no OpenTripMap key, find-restaurants will fail").
			withFix("set OPENTRIPMAP_API_KEY or sources.opentripmap.api_key")
	}
	return ok("OpenTripMap key set")
}

func checkWeatherSources(cfg *config.Config) finding {
	var slowest time.Duration
	for _, url := range []string{cfg.Sources.Geocoding.BaseURL, cfg.Sources.Forecast.BaseURL} {
		latency, err := probe(url, 5*time.Second)
		if err != nil {
			return fail("%s unreachable: %v", url, err).withFix("check network access and sources.*.base_url")
		}
		slowest = max(slowest, latency)
	}
	return ok("geocoding and forecast answered (slowest %dms)", slowest.Milliseconds())
}

// checkGatewayExposure fails when an unauthenticated gateway listens beyond
// loopback.
func checkGatewayExposure(cfg *config.Config) finding {
	gw := cfg.Gateway
	if !gw.Enabled {
		return ok("gateway disabled")
	}
	host, _, err := net.SplitHostPort(gw.Addr)
	if err != nil {
		return fail("gateway.addr %q: %v", gw.Addr, err)
	}
	if gw.Auth.Type == "static" {
		return ok("%s with %d token(s)", gw.Addr, len(gw.Auth.Tokens))
	}
	ip := net.ParseIP(host)
	if host == "localhost" || (ip != nil && ip.IsLoopback()) {
		return warn("%s without auth, loopback only", gw.Addr)
	}
	return fail("%s accepts anyone", gw.Addr).withFix("set gateway.auth.type: static or bind 127.0.0.1")
}
