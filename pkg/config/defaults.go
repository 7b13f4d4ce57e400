package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultFileMode = 0o600

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLogLevel maps a configuration level name to an slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	level, ok := logLevels[strings.ToLower(name)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}

	return level, nil
}

// RenderDefault returns the default configuration as YAML.
func RenderDefault() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# ordmap configuration. Every key can be overridden with an " + EnvPrefix + "_ environment variable.\n")

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	err := encoder.Encode(Default())
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	data, err := RenderDefault()
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	file, err := os.OpenFile(path, flags, defaultFileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()

		return fmt.Errorf("write %s: %w", path, err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
