// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &reg, nil
}

// New returns an empty registry stamped with the current time.
func New() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Activities:  []Activity{},
	}
}

// Save writes reg as indented JSON, creating the parent directory.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *ActivityRegistry) Touch() {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
}

// Find returns the activity with the given id or task type.
func (r *ActivityRegistry) Find(key string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].ID == key || r.Activities[i].TaskType == key {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

func (r *ActivityRegistry) Add(a Activity) error {
	if _, exists := r.Find(a.ID); exists {
		return fmt.Errorf("activity with ID %s already exists", a.ID)
	}
	r.Activities = append(r.Activities, a)
	r.Touch()
	return nil
}

// Validate checks every activity for required fields, duplicate ids and
// task types, a known implementation status and compilable schemas. All
// problems are reported together.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	var problems []string
	ids := map[string]bool{}
	taskTypes := map[string]bool{}
	for _, a := range r.Activities {
		name := a.ID
		if name == "" {
			name = "(unnamed)"
			problems = append(problems, "activity missing required field: id")
		}
		if ids[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate activity ID: %s", a.ID))
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("activity %s missing required field: displayName", name))
		}
		if a.Category == "" {
			problems = append(problems, fmt.Sprintf("activity %s missing required field: category", name))
		}
		if a.TaskType == "" {
			problems = append(problems, fmt.Sprintf("activity %s missing required field: taskType", name))
		} else if taskTypes[a.TaskType] {
			problems = append(problems, fmt.Sprintf("duplicate task type: %s", a.TaskType))
		}
		taskTypes[a.TaskType] = true

		if a.ImplementationStatus != "" && !implementationStatuses[a.ImplementationStatus] {
			problems = append(problems, fmt.Sprintf("activity %s has unknown implementationStatus %q", name, a.ImplementationStatus))
		}
		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				problems = append(problems, fmt.Sprintf("activity %s has invalid timeout %q", name, a.Timeout))
			}
		}
		if a.Retries < 0 {
			problems = append(problems, fmt.Sprintf("activity %s has negative retries", name))
		}
		for label, schema := range map[string]map[string]interface{}{"inputSchema": a.InputSchema, "outputSchema": a.OutputSchema} {
			if len(schema) == 0 {
				continue
			}
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
				problems = append(problems, fmt.Sprintf("activity %s has invalid %s: %v", name, label, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%d problem(s): %s", len(problems), strings.Join(problems, "; "))
	}
	return nil
}

// ValidateVariables checks job variables against the activity's input
// schema. An activity without an input schema accepts anything.
func (a *Activity) ValidateVariables(variables []byte) error {
	if len(a.InputSchema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(a.InputSchema),
		gojsonschema.NewBytesLoader(variables),
	)
	if err != nil {
		return fmt.Errorf("validate %s variables: %w", a.TaskType, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s variables invalid: %s", a.TaskType, strings.Join(msgs, "; "))
}
