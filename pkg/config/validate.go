package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// Validator checks project settings with struct tags and the CUE schema.
type Validator struct {
	validate *validator.Validate
	schemas  *SchemaRegistry
}

// NewValidator creates a validator with the built-in schemas.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonTagName)
	return &Validator{
		validate: v,
		schemas:  NewSchemaRegistry(),
	}
}

// ValidateProjectSettings runs the struct tag checks, then the schema.
func (v *Validator) ValidateProjectSettings(ctx context.Context, settings *engine.ProjectSettings) error {
	if settings == nil {
		return engine.InvalidInputError("project settings are missing")
	}
	if verrs := v.structErrors(settings); len(verrs) > 0 {
		return invalidSettings(verrs)
	}
	return v.schemas.ValidateProjectSettings(ctx, settings)
}

// ValidateInputs checks the tagged fields of an input bag.
func (v *Validator) ValidateInputs(inputs *engine.Inputs) error {
	if inputs == nil {
		return engine.InvalidInputError("inputs are missing")
	}
	verrs := v.structErrors(inputs)
	if len(verrs) == 0 {
		return nil
	}
	return engine.InvalidInputError(verrs[0].String())
}

// ValidateEnvConfig checks an environment config against its schema.
func (v *Validator) ValidateEnvConfig(ctx context.Context, cfg map[string]interface{}) error {
	verrs, err := v.schemas.ValidateAgainstSchema(ctx, SchemaEnvConfig, cfg)
	if err != nil {
		return err
	}
	if len(verrs) > 0 {
		return engine.NewUserError(engine.SourceCore, engine.ErrCodeInvalidEnvFile,
			fmt.Sprintf("invalid env config: %s", verrs[0]))
	}
	return nil
}

func (v *Validator) structErrors(s interface{}) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []ValidationError{{Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(ves))
	for _, fe := range ves {
		out = append(out, ValidationError{
			Path:    trimRoot(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

// trimRoot drops the struct type name from a validator namespace.
func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func jsonTagName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
