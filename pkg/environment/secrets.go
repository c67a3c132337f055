package environment

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

var placeholderPattern = regexp.MustCompile(`^\{\{([^{}]+)\}\}$`)

// Placeholder returns the state file placeholder of a secret field.
func Placeholder(plugin, key string) string {
	return fmt.Sprintf("{{%s.%s}}", plugin, key)
}

// secretFields returns the secret keys a plugin declared. JSON-decoded
// state holds them as []interface{}.
func secretFields(entry map[string]interface{}) []string {
	switch v := entry[engine.SecretFieldsKey].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, f := range v {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// splitSecrets moves declared secret values out of state into userdata,
// leaving placeholders behind. state must be a copy owned by the caller.
func splitSecrets(state engine.EnvState, userdata map[string]string, crypto CryptoProvider) error {
	for plugin, entry := range state {
		for _, field := range secretFields(entry) {
			value, ok := entry[field].(string)
			if !ok || value == "" || placeholderPattern.MatchString(value) {
				continue
			}
			if crypto == nil {
				return engine.NewSystemError(engine.SourceCore, engine.ErrCodeWriteFile,
					fmt.Sprintf("no crypto provider to store secret %s.%s", plugin, field))
			}
			sealed, err := crypto.Encrypt(value)
			if err != nil {
				return err
			}
			userdata[plugin+"."+field] = sealed
			entry[field] = Placeholder(plugin, field)
		}
	}
	return nil
}

// restoreSecrets replaces placeholders with decrypted userdata values.
// Placeholders without a userdata entry are left untouched.
func restoreSecrets(state engine.EnvState, userdata map[string]string, crypto CryptoProvider) error {
	for _, entry := range state {
		for k, v := range entry {
			s, ok := v.(string)
			if !ok {
				continue
			}
			m := placeholderPattern.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			sealed, ok := userdata[m[1]]
			if !ok {
				continue
			}
			if crypto == nil {
				entry[k] = sealed
				continue
			}
			plain, err := crypto.Decrypt(sealed)
			if err != nil {
				return fmt.Errorf("secret %s: %w", m[1], err)
			}
			entry[k] = plain
		}
	}
	return nil
}

// readUserData parses a KEY=VALUE file. A missing file is empty.
func readUserData(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, sc.Err()
}

func writeUserData(path string, userdata map[string]string) error {
	keys := make([]string, 0, len(userdata))
	for k := range userdata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, userdata[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}
