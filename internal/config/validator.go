package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/load"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(&c.Settings, errs)
	validateLoad(&c.Load, errs)
	validateRequest(&c.Request, errs)

	if c.Thresholds != nil {
		for _, err := range c.Thresholds.Validate() {
			errs.Add("thresholds", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateLoad(l *LoadProfile, errs *ValidationErrors) {
	const prefix = "load"

	if len(l.Stages) > 0 {
		if l.VUs != 0 || l.Duration != "" {
			errs.Add(prefix, "use either vus/duration or stages, not both")
		}
		var total time.Duration
		parsed := true
		for i, stage := range l.Stages {
			d, ok := validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &stage, errs)
			total += d
			parsed = parsed && ok
		}
		// A zero-duration stage jumps straight to its target; the plan as a
		// whole still has to run for some time.
		if parsed && total <= 0 {
			errs.Add(prefix+".stages", "total duration must be greater than 0")
		}
	} else {
		if l.VUs < 0 {
			errs.Add(prefix+".vus", "vus cannot be negative")
		}
		if l.Duration == "" {
			errs.Add(prefix+".duration", "duration or stages is required")
		} else if d, err := ParseDurationString(l.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		} else if d <= 0 {
			errs.Add(prefix+".duration", "duration must be greater than 0")
		}
	}

	if l.Rate < 0 {
		errs.Add(prefix+".rate", "rate cannot be negative")
	}
	if l.Burst < 0 {
		errs.Add(prefix+".burst", "burst cannot be negative")
	}

	validateOptionalDuration(prefix+".iterationTimeout", l.IterationTimeout, errs)
	validateOptionalDuration(prefix+".gracePeriod", l.GracePeriod, errs)
	validateOptionalDuration(prefix+".snapshotInterval", l.SnapshotInterval, errs)

	if l.Pacing != nil {
		validatePacing(prefix+".pacing", l.Pacing, errs)
	}
}

func validateOptionalDuration(field, value string, errs *ValidationErrors) {
	if value == "" {
		return
	}
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
		return
	}
	if d < 0 {
		errs.Add(field, "cannot be negative")
	}
}

// validateStage validates a single stage configuration and returns its
// duration. ok is false when the duration could not be parsed.
func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) (d time.Duration, ok bool) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if parsed, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if parsed < 0 {
		errs.Add(prefix+".duration", "duration cannot be negative")
	} else {
		d, ok = parsed, true
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}

	switch load.RampMode(stage.Ramp) {
	case "", load.RampStep, load.RampLinear:
	default:
		errs.Add(prefix+".ramp", fmt.Sprintf("invalid ramp: %s (expected step or linear)", stage.Ramp))
	}
	return d, ok
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	validTypes := map[string]bool{
		"none": true, "constant": true, "random": true,
	}

	if !validTypes[pacing.Type] {
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}

	switch pacing.Type {
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := ParseDurationString(pacing.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		}

	case "random":
		if pacing.Min == "" {
			errs.Add(prefix+".min", "min is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Min); err != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", err))
		}

		if pacing.Max == "" {
			errs.Add(prefix+".max", "max is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Max); err != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", err))
		}

		if pacing.Min != "" && pacing.Max != "" {
			minDur, _ := ParseDurationString(pacing.Min)
			maxDur, _ := ParseDurationString(pacing.Max)
			if minDur > maxDur {
				errs.Add(prefix, "min must be less than or equal to max")
			}
		}
	}
}

var placeholderPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

// validateRequest validates the request configuration.
func validateRequest(req *RequestConfig, errs *ValidationErrors) {
	const prefix = "request"

	validMethods := map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}

	method := strings.ToUpper(req.Method)
	if method != "" && !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		urlToCheck := strings.NewReplacer("{{baseUrl}}", "http://example.com", "{{baseURL}}", "http://example.com").Replace(req.URL)
		urlToCheck = placeholderPattern.ReplaceAllString(urlToCheck, "placeholder")
		if _, err := url.Parse(urlToCheck); err != nil {
			errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
		}
	}

	for i, code := range req.SuccessStatus {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("%s.successStatus[%d]", prefix, i), fmt.Sprintf("invalid status code: %d", code))
		}
	}

	for i, check := range req.Checks {
		if err := check.Validate(); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		if _, err := url.Parse(s.BaseURL); err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		}
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}
