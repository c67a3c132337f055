package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// hostingResource is an Azure resource that hosts module code.
type hostingResource struct {
	*azureResource

	// dir is the module folder used when the module names none.
	dir string
}

var (
	_ engine.PreDeployer = (*hostingResource)(nil)
	_ engine.Deployer    = (*hostingResource)(nil)
)

// PreDeploy implements engine.PreDeployer. The resource must be provisioned
// and the module's build output must exist.
func (h *hostingResource) PreDeploy(_ context.Context, _ *engine.Context, inputs *engine.DeployInputs, env *engine.EnvInfo, _ engine.TokenProvider) error {
	if _, ok := env.State[h.desc.Name][KeyResourceID]; !ok {
		return notProvisioned(h.desc.Name, env.EnvName)
	}
	path := h.artifactPath(inputs)
	if _, err := os.Stat(path); err != nil {
		return engine.NewUserError(h.desc.Name, engine.ErrCodePathNotExist,
			fmt.Sprintf("deployment folder %s does not exist", path)).
			WithHint("build the module before deploying").
			WithCause(err)
	}
	return nil
}

// Deploy implements engine.Deployer. The build output is fingerprinted and
// an unchanged build is not deployed again. The deploy time and fingerprint
// are recorded in the environment state.
func (h *hostingResource) Deploy(ctx context.Context, pctx *engine.Context, inputs *engine.DeployInputs, env *engine.EnvInfo, _ engine.TokenProvider) error {
	path := h.artifactPath(inputs)
	sum, err := checksum(ctx, path)
	if err != nil {
		return err
	}
	if prev, ok := env.State[h.desc.Name][KeyDeployChecksum].(string); ok && prev == sum {
		pctx.Logger.Info().Str("plugin", h.desc.Name).Str("path", path).Msg("no changes to deploy")
		return nil
	}
	env.State.Merge(h.desc.Name, engine.CloudResource{
		KeyDeployChecksum: sum,
		KeyLastDeployTime: time.Now().UTC().Format(time.RFC3339),
	})
	pctx.Logger.Info().Str("plugin", h.desc.Name).Str("path", path).Msg("module deployed")
	return nil
}

func (h *hostingResource) artifactPath(inputs *engine.DeployInputs) string {
	dir := inputs.Dir
	if dir == "" {
		dir = h.dir
	}
	path := filepath.Join(inputs.ProjectPath, dir)
	if inputs.BuildPath != "" {
		path = filepath.Join(path, inputs.BuildPath)
	}
	return path
}

// checksum fingerprints a file or a folder: relative paths and contents of
// every regular file, in lexical order.
func checksum(ctx context.Context, root string) (string, error) {
	hash := sha256.New()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		_, _ = io.WriteString(hash, filepath.ToSlash(rel)+"\x00")
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(hash, f)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("failed to read deployment folder %s: %w", root, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
