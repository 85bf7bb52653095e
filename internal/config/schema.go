// Package config provides parsing and validation of volley test files.
package config

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/workload"
)

// TestConfig is the root of a test file.
//
// Example YAML:
//
//	name: "Deal API"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	  timeout: 10s
//	load:
//	  vus: 10
//	  duration: 30s
//	  pacing:
//	    type: constant
//	    duration: 1s
//	request:
//	  method: POST
//	  url: "{{baseUrl}}/deals"
//	  body: '{"dealId":"D-{{randInt 1000}}","fromCurrency":"USD","toCurrency":"EUR","amount":100}'
//	  successStatus: [201, 409]
//	thresholds:
//	  iterations_failed: ["rate < 0.05"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains HTTP client settings
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables resolve {{name}} placeholders in the request
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Load is the stage plan and run options
	Load LoadProfile `json:"load" yaml:"load"`

	// Request is what every iteration sends
	Request RequestConfig `json:"request" yaml:"request"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *report.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// GlobalSettings contains HTTP client settings.
type GlobalSettings struct {
	// BaseURL is available to the request as {{baseUrl}}
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the HTTP client timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to the request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// LoadProfile describes the load profile.
//
// Either vus and duration, or stages, must be set.
type LoadProfile struct {
	// VUs is the constant VU count
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to hold VUs (e.g., "30s", "2m")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages is the staged plan
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Rate caps iteration starts per second across all VUs (0 = unlimited)
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// Burst lets the rate gate admit bursts of this many starts
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`

	// Pacing controls the pause after each iteration
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// IterationTimeout bounds one iteration
	IterationTimeout string `json:"iterationTimeout,omitempty" yaml:"iterationTimeout,omitempty"`

	// GracePeriod bounds the drain at the end of the run
	GracePeriod string `json:"gracePeriod,omitempty" yaml:"gracePeriod,omitempty"`

	// Retention caps retained raw outcomes (0 = all, -1 = streaming only)
	Retention int `json:"retention,omitempty" yaml:"retention,omitempty"`

	// SnapshotInterval emits periodic snapshots
	SnapshotInterval string `json:"snapshotInterval,omitempty" yaml:"snapshotInterval,omitempty"`
}

// StageConfig defines a single stage.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count
	Target int `json:"target" yaml:"target"`

	// Ramp is "step" (default) or "linear"
	Ramp string `json:"ramp,omitempty" yaml:"ramp,omitempty"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// RequestConfig defines the HTTP request each iteration sends.
type RequestConfig struct {
	// Name for this request (used in logs)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, etc.)
	Method string `json:"method" yaml:"method"`

	// URL is the request URL (supports placeholders)
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body (supports placeholders)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// SuccessStatus lists status codes that count as success (default: < 400)
	SuccessStatus []int `json:"successStatus,omitempty" yaml:"successStatus,omitempty"`

	// Checks are named assertions evaluated on every response
	Checks []workload.Check `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML
// strings ("30s") or integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
