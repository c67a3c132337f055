// Package config holds the configuration layer of fx.
//
// # Components
//
// SchemaRegistry: CUE schemas for project settings (.fx/configs/projectSettings.json)
// and environment configs (.fx/configs/config.<env>.json). Custom schemas can be
// registered under a name and a definition path.
//
// Validator: struct tag validation (go-playground/validator) followed by the CUE
// schema check. Failures are reported as engine.FxError with code
// InvalidProjectSettings and the individual messages under Details["errors"].
//
// CLIConfig: the fx.yaml file read from --config or <project>/.fx/fx.yaml. It
// configures telemetry, the operation history store, template policies and the
// directory of Starlark user tasks. A missing file yields Default().
//
// StarlarkEvaluator: runs user task scripts with a timeout. Inputs are bound as
// predeclared globals, "struct" and "json" are available, and the public
// non-function globals of the script form the result.
//
// # Usage
//
//	v := config.NewValidator()
//	if err := v.ValidateProjectSettings(ctx, settings); err != nil {
//	    return err
//	}
//
//	eval := config.NewStarlarkEvaluator(10*time.Second, logger)
//	res, err := eval.Evaluate(ctx, "build.star", script, map[string]interface{}{
//	    "env": "dev",
//	})
package config
