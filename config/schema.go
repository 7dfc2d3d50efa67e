package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const documentSchema = `{
  "type": "object",
  "required": ["system", "strategies"],
  "properties": {
    "system": {
      "type": "object",
      "properties": {
        "intake_port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "authorized_account_number": {"type": "integer"},
        "risk_management": {"$ref": "#/$defs/risk"},
        "broker": {"type": "object"},
        "journal": {"type": "object"}
      }
    },
    "risk_management": {"$ref": "#/$defs/risk"},
    "strategies": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["enabled", "volume", "magic_number"],
        "properties": {
          "enabled": {"type": "boolean"},
          "volume": {"type": "number", "exclusiveMinimum": 0},
          "magic_number": {"type": "integer"},
          "trade_limits": {
            "type": "object",
            "properties": {
              "sl_points": {"type": "number", "minimum": 0},
              "tp_points": {"type": "number", "minimum": 0},
              "point_size": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "risk": {
      "type": "object",
      "properties": {
        "basket_enabled": {"type": "boolean"},
        "basket_take_profit_usd": {"type": ["number", "null"]},
        "basket_stop_loss_usd": {"type": ["number", "null"]},
        "unlock_policy": {"enum": ["restart", "daily"]}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.json", strings.NewReader(documentSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("config.json")
	})
	return schemaCompiled, schemaErr
}

// validateSchema checks the raw document's shape. The YAML tree is pushed
// through JSON so the validator only sees JSON value types.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		doc = nil
		if jerr := sonic.Unmarshal(data, &doc); jerr != nil {
			return fmt.Errorf("decode document: %w", err)
		}
	}
	raw, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	var normalized any
	if err := sonic.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return schema.Validate(normalized)
}
