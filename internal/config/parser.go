package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/workload"
)

// DefaultUserAgent is sent when settings.userAgent is empty.
const DefaultUserAgent = "volley/1.0"

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "volley"
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(30 * time.Second)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}
	if config.Request.Method == "" {
		config.Request.Method = "GET"
	}
	if config.Request.Name == "" {
		config.Request.Name = strings.ToUpper(config.Request.Method) + " " + config.Request.URL
	}
	if config.Load.Pacing != nil && config.Load.Pacing.Type == "" {
		config.Load.Pacing.Type = string(load.PacingNone)
	}
}

// ToPlan converts the load section into a stage plan.
//
// vus/duration becomes a single step stage.
func (c *TestConfig) ToPlan() (load.Plan, error) {
	if len(c.Load.Stages) == 0 {
		d, err := ParseDurationString(c.Load.Duration)
		if err != nil {
			return load.Plan{}, fmt.Errorf("invalid duration: %w", err)
		}
		return load.ConstantPlan(c.Load.VUs, d), nil
	}

	plan := load.Plan{Stages: make([]load.Stage, 0, len(c.Load.Stages))}
	for i, s := range c.Load.Stages {
		d, err := ParseDurationString(s.Duration)
		if err != nil {
			return load.Plan{}, fmt.Errorf("invalid stage %d duration: %w", i, err)
		}
		plan.Stages = append(plan.Stages, load.Stage{
			Target:   s.Target,
			Duration: d,
			Ramp:     load.RampMode(s.Ramp),
			Name:     s.Name,
		})
	}
	return plan, nil
}

// ToOptions converts the load section into run options. Logger and
// observers are left for the caller.
func (c *TestConfig) ToOptions() (load.Options, error) {
	opts := load.Options{
		Rate:         c.Load.Rate,
		Burst:        c.Load.Burst,
		RetentionCap: c.Load.Retention,
	}

	var err error
	if opts.IterationTimeout, err = ParseDurationString(c.Load.IterationTimeout); err != nil {
		return opts, fmt.Errorf("invalid iterationTimeout: %w", err)
	}
	if opts.GracePeriod, err = ParseDurationString(c.Load.GracePeriod); err != nil {
		return opts, fmt.Errorf("invalid gracePeriod: %w", err)
	}
	if opts.SnapshotInterval, err = ParseDurationString(c.Load.SnapshotInterval); err != nil {
		return opts, fmt.Errorf("invalid snapshotInterval: %w", err)
	}

	if p := c.Load.Pacing; p != nil {
		opts.Pacing.Type = load.PacingType(p.Type)
		if opts.Pacing.Duration, err = ParseDurationString(p.Duration); err != nil {
			return opts, fmt.Errorf("invalid pacing duration: %w", err)
		}
		if opts.Pacing.Min, err = ParseDurationString(p.Min); err != nil {
			return opts, fmt.Errorf("invalid pacing min: %w", err)
		}
		if opts.Pacing.Max, err = ParseDurationString(p.Max); err != nil {
			return opts, fmt.Errorf("invalid pacing max: %w", err)
		}
	}
	return opts, nil
}

// ToHTTPConfig builds the HTTP workload configuration.
//
// settings.baseUrl is exposed as {{baseUrl}} and {{baseURL}}; settings
// headers are applied first and request headers override them.
func (c *TestConfig) ToHTTPConfig() workload.HTTPConfig {
	vars := MergeVariables(c.Variables)
	if c.Settings.BaseURL != "" {
		base := strings.TrimSuffix(c.Settings.BaseURL, "/")
		vars["baseUrl"] = base
		vars["baseURL"] = base
	}

	headers := MergeVariables(c.Settings.Headers, c.Request.Headers)
	if c.Settings.UserAgent != "" {
		if _, ok := headers["User-Agent"]; !ok {
			headers["User-Agent"] = c.Settings.UserAgent
		}
	}

	client := workload.DefaultClientConfig()
	client.Timeout = c.Settings.Timeout.GetDuration(client.Timeout)
	if c.Settings.MaxConnectionsPerHost > 0 {
		client.MaxConnsPerHost = c.Settings.MaxConnectionsPerHost
	}
	if c.Settings.MaxIdleConnsPerHost > 0 {
		client.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	client.InsecureSkipVerify = c.Settings.InsecureSkipVerify

	return workload.HTTPConfig{
		Name:          c.Request.Name,
		Method:        c.Request.Method,
		URL:           c.Request.URL,
		Headers:       headers,
		Body:          c.Request.Body,
		SuccessStatus: c.Request.SuccessStatus,
		Checks:        c.Request.Checks,
		Variables:     vars,
		Client:        client,
	}
}

// MergeVariables merges multiple variable maps in order.
// Later maps override earlier ones.
func MergeVariables(ms ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}
