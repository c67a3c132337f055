package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Schema names registered by NewSchemaRegistry.
const (
	SchemaProjectSettings = "projectSettings"
	SchemaEnvConfig       = "envConfig"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	if err := sr.RegisterSchema(SchemaProjectSettings, "#ProjectSettings", builtinProjectSettingsSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaEnvConfig, "#EnvConfig", builtinEnvConfigSchema); err != nil {
		panic(err)
	}
}

// RegisterSchema compiles schema and registers its definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAgainstSchema validates data against a named schema. data is
// encoded through its JSON form so struct tags decide the field names.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) ([]ValidationError, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return nil, fmt.Errorf("schema %s not found", schemaName)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	// cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	dataVal := sr.ctx.Encode(generic)
	if err := dataVal.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err), nil
	}
	return nil, nil
}

// ValidateProjectSettings checks settings against the project settings schema.
func (sr *SchemaRegistry) ValidateProjectSettings(ctx context.Context, settings *engine.ProjectSettings) error {
	verrs, err := sr.ValidateAgainstSchema(ctx, SchemaProjectSettings, settings)
	if err != nil {
		return err
	}
	return invalidSettings(verrs)
}

// ValidationError is one schema or struct validation failure.
type ValidationError struct {
	// Path is the field path, e.g. "solutionSettings.modules.0.deployType".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		msg, args := e.Msg()
		out = append(out, ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(msg, args...),
		})
	}
	return out
}

func invalidSettings(verrs []ValidationError) error {
	if len(verrs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(verrs))
	for _, v := range verrs {
		msgs = append(msgs, v.String())
	}
	return engine.NewUserError(engine.SourceCore, engine.ErrCodeInvalidProjectSettings,
		fmt.Sprintf("invalid project settings: %s", msgs[0])).
		WithDetail("errors", msgs).
		WithHint("fix .fx/configs/projectSettings.json and run 'fx validate'")
}

const builtinProjectSettingsSchema = `
#Module: {
	capabilities?:  [...string]
	hostingPlugin?: string & =~"^fx-resource-[a-z0-9-]+$"
	dir?:           string
	buildPath?:     string
	deployType?:    "folder" | "zip"
}

#ProjectSettings: {
	appName:              string & =~"^[a-zA-Z][a-zA-Z0-9 _-]*$"
	projectId:            string & =~"^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
	version?:             string
	programmingLanguage?: "javascript" | "typescript" | "csharp"
	solutionSettings: {
		name:                  string
		version?:              string
		capabilities?:         [...string]
		hostType?:             "Azure" | "SPFx"
		azureResources?:       [...string]
		modules:               null | [...#Module]
		activeResourcePlugins: null | [...string]
	}
}
`

const builtinEnvConfigSchema = `
#EnvConfig: {
	"$schema"?: string
	manifest?: {
		appName?: {
			short: string
			full?: string
		}
		...
	}
	azure?: {
		subscriptionId?: string
		resourceGroupName?: string
		location?: string
	}
	...
}
`
