package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/RoboSDK/flow/errors"
	"github.com/RoboSDK/flow/logging"
)

// configSchema is the structural contract for Config, enforced before the
// semantic checks run.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "runtime"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "runtime": {
      "type": "object",
      "properties": {
        "workers": {"type": "integer", "minimum": 1},
        "channel_capacity": {"type": "integer", "minimum": 1},
        "batch_size": {"type": "integer", "minimum": 1}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string"}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "listen": {"type": "string"}
      }
    }
  }
}`

// Validate checks the configuration against the embedded JSON schema and the
// semantic rules the schema cannot express.
func (c *Config) Validate() error {
	document, err := json.Marshal(c)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "document marshaling")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(document))
	if err != nil {
		return errors.WrapFatal(err, "Config", "Validate", "schema evaluation")
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(details, "; ")),
			"Config", "Validate", "schema validation")
	}

	// Semantic rules beyond the schema.
	if cap := c.Runtime.ChannelCapacity; cap&(cap-1) != 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: channel_capacity %d is not a power of two", errors.ErrInvalidConfig, cap),
			"Config", "Validate", "capacity check")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Config", "Validate", "log level check")
	}
	return nil
}
