package canon

// envelopeSchema is the canonical envelope schema. The root object has
// exactly one property, "messages"; recipient and termination are required
// exactly for assistant commentary messages.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "items": {"$ref": "#/$defs/message"}
    }
  },
  "$defs": {
    "message": {
      "type": "object",
      "additionalProperties": false,
      "required": ["role", "channel", "contentType", "content"],
      "properties": {
        "role": {"type": "string", "minLength": 1},
        "channel": {"enum": ["", "analysis", "commentary", "final"]},
        "contentType": {"enum": ["text", "json", "harmony-script"]},
        "content": {},
        "recipient": {"type": "string"},
        "termination": {"enum": ["", "call", "return", "end"]}
      },
      "if": {
        "required": ["role", "channel"],
        "properties": {
          "role": {"const": "assistant"},
          "channel": {"const": "commentary"}
        }
      },
      "then": {"required": ["recipient", "termination"]}
    }
  }
}`

// scriptSchema validates harmony-script bodies: an ordered step list plus
// optional default vars. Per-variant requirements are expressed as
// conditionals on the "type" discriminator. An empty step list is valid at
// the schema level; the executor rejects it with NO_HARMONY_STEPS.
const scriptSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {"$ref": "#/$defs/step"}
    },
    "vars": {"type": "object"}
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["extract-input", "tool-call", "if", "assistant-message", "halt"]}
      },
      "allOf": [
        {
          "if": {"properties": {"type": {"const": "extract-input"}}, "required": ["type"]},
          "then": {
            "required": ["vars"],
            "properties": {"vars": {"type": "object", "additionalProperties": {"type": "string"}}}
          }
        },
        {
          "if": {"properties": {"type": {"const": "tool-call"}}, "required": ["type"]},
          "then": {
            "required": ["recipient", "channel"],
            "properties": {
              "recipient": {"type": "string", "minLength": 1},
              "channel": {"type": "string"},
              "args": {"type": "object"},
              "save_as": {"type": "string"}
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "if"}}, "required": ["type"]},
          "then": {
            "required": ["condition"],
            "properties": {
              "condition": {"type": "string", "minLength": 1},
              "then": {"type": "array", "items": {"$ref": "#/$defs/step"}},
              "else": {"type": "array", "items": {"$ref": "#/$defs/step"}}
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "assistant-message"}}, "required": ["type"]},
          "then": {
            "required": ["channel"],
            "properties": {
              "channel": {"enum": ["analysis", "final"]},
              "content": {"type": "string"},
              "contentTemplate": {"type": "string"}
            }
          }
        }
      ]
    }
  }
}`
