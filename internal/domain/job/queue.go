package job

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default queue settings applied when a definition leaves a field unset.
const (
	DefaultRetries           = 3
	DefaultBackoffBase       = 2 * time.Second
	DefaultBackoffCap        = 5 * time.Minute
	DefaultCompletedMaxAge   = time.Hour
	DefaultCompletedMaxCount = 1000
	// Failed jobs are retained far longer than completed ones so they stay
	// available for diagnosis.
	DefaultFailedMaxAge   = 7 * 24 * time.Hour
	DefaultFailedMaxCount = 5000
)

// RetentionWindow bounds how long and how many terminal jobs a queue keeps.
type RetentionWindow struct {
	MaxAge   time.Duration `yaml:"max_age"   mapstructure:"max_age"`
	MaxCount int           `yaml:"max_count" mapstructure:"max_count"`
}

// RetentionPolicy holds separate windows for completed and failed jobs.
type RetentionPolicy struct {
	Completed RetentionWindow `yaml:"completed" mapstructure:"completed"`
	Failed    RetentionWindow `yaml:"failed"    mapstructure:"failed"`
}

// QueueDefinition is the immutable per-queue configuration. Definitions are
// created at process start and never mutated at runtime.
type QueueDefinition struct {
	Name            string          `yaml:"name"             mapstructure:"name"`
	DefaultRetries  int             `yaml:"default_retries"  mapstructure:"default_retries"`
	DefaultPriority int             `yaml:"default_priority" mapstructure:"default_priority"`
	Backoff         BackoffPolicy   `yaml:"backoff"          mapstructure:"backoff"`
	Retention       RetentionPolicy `yaml:"retention"        mapstructure:"retention"`
}

// Validate checks the definition's invariants.
func (d QueueDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if d.DefaultRetries < 1 {
		return fmt.Errorf("queue %s: default_retries must be at least 1", d.Name)
	}
	if err := d.Backoff.Validate(); err != nil {
		return fmt.Errorf("queue %s: %w", d.Name, err)
	}
	return nil
}

// WithDefaults returns a copy of the definition with unset fields filled in.
func (d QueueDefinition) WithDefaults() QueueDefinition {
	if d.DefaultRetries == 0 {
		d.DefaultRetries = DefaultRetries
	}
	// Backoff defaults apply only when the whole policy is unset. An
	// explicitly configured policy keeps its values: a zero base means no
	// delay between attempts, a zero cap means uncapped.
	if d.Backoff.Kind == "" {
		d.Backoff.Kind = BackoffExponential
		if d.Backoff.Base == 0 {
			d.Backoff.Base = DefaultBackoffBase
		}
		if d.Backoff.Cap == 0 {
			d.Backoff.Cap = DefaultBackoffCap
		}
	}
	if d.Retention.Completed.MaxAge == 0 {
		d.Retention.Completed.MaxAge = DefaultCompletedMaxAge
	}
	if d.Retention.Completed.MaxCount == 0 {
		d.Retention.Completed.MaxCount = DefaultCompletedMaxCount
	}
	if d.Retention.Failed.MaxAge == 0 {
		d.Retention.Failed.MaxAge = DefaultFailedMaxAge
	}
	if d.Retention.Failed.MaxCount == 0 {
		d.Retention.Failed.MaxCount = DefaultFailedMaxCount
	}
	return d
}

// DefaultQueueDefinitions returns the built-in queue set. Each queue's
// policy reflects its external dependency: transcription and sync back off
// aggressively against slow rate-limited providers, notification favors
// interactive latency, embedding sits in between.
func DefaultQueueDefinitions() []QueueDefinition {
	defs := []QueueDefinition{
		{
			Name:           string(TypeTranscription),
			DefaultRetries: 5,
			Backoff:        BackoffPolicy{Kind: BackoffExponential, Base: 10 * time.Second, Cap: 10 * time.Minute},
		},
		{
			Name:           string(TypeEmbedding),
			DefaultRetries: 3,
			Backoff:        BackoffPolicy{Kind: BackoffExponential, Base: 2 * time.Second, Cap: 2 * time.Minute},
		},
		{
			Name:            string(TypeNotification),
			DefaultRetries:  3,
			DefaultPriority: 10,
			Backoff:         BackoffPolicy{Kind: BackoffFixed, Base: 5 * time.Second},
		},
		{
			Name:           string(TypeSync),
			DefaultRetries: 4,
			Backoff:        BackoffPolicy{Kind: BackoffLinear, Base: 30 * time.Second, Cap: 10 * time.Minute},
		},
	}

	for i := range defs {
		defs[i] = defs[i].WithDefaults()
	}
	return defs
}

// UnmarshalYAML accepts durations as strings ("30s", "5m") since yaml.v3
// has no native time.Duration support.
func (p *BackoffPolicy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Kind string `yaml:"kind"`
		Base string `yaml:"base"`
		Cap  string `yaml:"cap"`
		Name string `yaml:"name"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	p.Kind = BackoffKind(raw.Kind)
	p.Name = raw.Name

	var err error
	if p.Base, err = parseYAMLDuration(raw.Base); err != nil {
		return fmt.Errorf("backoff base: %w", err)
	}
	if p.Cap, err = parseYAMLDuration(raw.Cap); err != nil {
		return fmt.Errorf("backoff cap: %w", err)
	}
	return nil
}

// UnmarshalYAML accepts max_age as a duration string.
func (w *RetentionWindow) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxAge   string `yaml:"max_age"`
		MaxCount int    `yaml:"max_count"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	w.MaxCount = raw.MaxCount

	var err error
	if w.MaxAge, err = parseYAMLDuration(raw.MaxAge); err != nil {
		return fmt.Errorf("retention max_age: %w", err)
	}
	return nil
}

func parseYAMLDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// queueFile is the on-disk shape of a queue-definition override file.
type queueFile struct {
	Queues []QueueDefinition `yaml:"queues"`
}

// LoadQueueDefinitions reads queue definitions from a YAML file, applies
// defaults and validates each entry.
func LoadQueueDefinitions(path string) ([]QueueDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue definitions: %w", err)
	}

	var file queueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse queue definitions: %w", err)
	}

	defs := make([]QueueDefinition, 0, len(file.Queues))
	seen := make(map[string]bool)
	for _, def := range file.Queues {
		def = def.WithDefaults()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate queue definition: %s", def.Name)
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}

	return defs, nil
}
