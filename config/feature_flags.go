package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FeatureFlags manages feature toggles for the import pipeline.
// Supports gradual rollout per actor and an optional YAML overrides file.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	actorOverrides map[string]map[string]bool // actorID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     bool   `yaml:"enabled"`

	// Rollout percentage (0-100), bucketed by hash of the actor ID.
	RolloutPercent int `yaml:"rollout_percent"`

	// Time-based activation
	EnabledFrom  *time.Time `yaml:"enabled_from"`
	EnabledUntil *time.Time `yaml:"enabled_until"`
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	ActorID string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Import pipeline ===
	FeatureCourseCodeFallback = "import.course_code_fallback" // resolve course by code alone when not linked to the division
	FeatureUploadLock         = "import.upload_lock"          // reject concurrent imports of the same bytes
	FeatureReportCache        = "import.report_cache"         // keep reports in Redis for GET /imports/{id}

	// === Observability ===
	FeatureAuditLog = "events.audit_log" // log every completed/failed run
)

// LoadFeatureFlags loads feature flags from defaults, an optional YAML file
// (FEATURE_FLAGS_FILE) and environment variables, in that order.
func LoadFeatureFlags() (*FeatureFlags, error) {
	ff := NewFeatureFlags()

	if path := os.Getenv("FEATURE_FLAGS_FILE"); path != "" {
		if err := ff.LoadFile(path); err != nil {
			return nil, err
		}
	}

	ff.loadFromEnvironment()
	return ff, nil
}

// NewFeatureFlags returns flags initialized with defaults only.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:       make(map[string]*Feature),
		actorOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureCourseCodeFallback] = &Feature{
		Name:           FeatureCourseCodeFallback,
		Description:    "Fall back to code-only course lookup (lowest id wins)",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureUploadLock] = &Feature{
		Name:           FeatureUploadLock,
		Description:    "Lock uploads by content hash while they are processed",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureReportCache] = &Feature{
		Name:           FeatureReportCache,
		Description:    "Cache import reports in Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAuditLog] = &Feature{
		Name:           FeatureAuditLog,
		Description:    "Write an audit log line per import run",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// flagFile is the YAML layout of FEATURE_FLAGS_FILE.
type flagFile struct {
	Features []Feature `yaml:"features"`
}

// LoadFile applies the features listed in a YAML file. Unknown names are
// rejected so that typos do not silently keep a default.
func (ff *FeatureFlags) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read feature flags file: %w", err)
	}
	return ff.loadYAML(data)
}

func (ff *FeatureFlags) loadYAML(data []byte) error {
	var file flagFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse feature flags file: %w", err)
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	for _, f := range file.Features {
		existing, ok := ff.features[f.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrFeatureNotFound, f.Name)
		}
		if f.RolloutPercent < 0 || f.RolloutPercent > 100 {
			return fmt.Errorf("%w: %s", ErrInvalidRolloutPercent, f.Name)
		}
		existing.Enabled = f.Enabled
		existing.RolloutPercent = f.RolloutPercent
		if f.Enabled && f.RolloutPercent == 0 {
			existing.RolloutPercent = 100
		}
		existing.EnabledFrom = f.EnabledFrom
		existing.EnabledUntil = f.EnabledUntil
	}
	return nil
}

// loadFromEnvironment applies feature overrides from environment variables.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}
			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "import.upload_lock" -> "FEATURE_IMPORT_UPLOAD_LOCK"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil context evaluates the global switch only.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check actor overrides first
	if ctx != nil && ctx.ActorID != "" {
		if overrides, ok := ff.actorOverrides[ctx.ActorID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Admins are never held back by a partial rollout.
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.ActorID != "" {
		return isInRollout(ctx.ActorID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if an actor is in the rollout percentage.
// Uses consistent hashing so actors stay in their bucket.
func isInRollout(actorID string, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(actorID))
	return int(h.Sum32()%100) < percent
}

// SetActorOverride sets a feature override for a specific actor.
func (ff *FeatureFlags) SetActorOverride(actorID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.actorOverrides[actorID]; !ok {
		ff.actorOverrides[actorID] = make(map[string]bool)
	}
	ff.actorOverrides[actorID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
