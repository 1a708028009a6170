package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/joho/godotenv"
)

// ConvertEnvFile reads a legacy .env file and returns the equivalent
// config.json document.
func ConvertEnvFile(path string) (map[string]any, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ConvertEnv(values), nil
}

// ConvertEnv lower-cases keys and coerces values: digit strings become
// integers, colon separated digit lists become integer lists, and
// true/false/none/null become booleans or nil. Keys ending in "s" always hold
// a list.
func ConvertEnv(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for name, raw := range values {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		value := convertValue(strings.TrimSpace(raw))
		if strings.HasSuffix(name, "s") {
			if _, isList := value.([]int64); !isList {
				value = []any{value}
			}
		}
		out[name] = value
	}
	return out
}

func convertValue(raw string) any {
	if strings.Contains(raw, ":") {
		if list, err := colonIntList(raw); err == nil {
			return list
		}
		return raw
	}
	if isDigits(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	case "none", "null":
		return nil
	}
	return raw
}

func colonIntList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ":")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WriteJSON writes doc as an indented JSON config file.
func WriteJSON(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrapf(os.WriteFile(path, append(data, '\n'), 0o600), "write %s", path)
}
