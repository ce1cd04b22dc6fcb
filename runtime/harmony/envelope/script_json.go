// JSON codec for Script steps. Steps are a closed tagged variant set
// discriminated by the "type" property; decoding materializes the concrete
// implementations so the interpreter can switch on Go types.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UnmarshalJSON decodes a Script while materializing concrete Step
// implementations stored in the Steps slice.
func (s *Script) UnmarshalJSON(data []byte) error {
	type alias struct {
		Steps []json.RawMessage `json:"steps"`
		Vars  map[string]any    `json:"vars"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	s.Vars = tmp.Vars
	steps, err := decodeSteps(tmp.Steps)
	if err != nil {
		return err
	}
	s.Steps = steps
	return nil
}

// MarshalJSON encodes the script with step discriminators in place.
func (s Script) MarshalJSON() ([]byte, error) {
	steps := make([]json.RawMessage, 0, len(s.Steps))
	for i, st := range s.Steps {
		raw, err := encodeStep(st)
		if err != nil {
			return nil, fmt.Errorf("encode steps[%d]: %w", i, err)
		}
		steps = append(steps, raw)
	}
	type alias struct {
		Steps []json.RawMessage `json:"steps"`
		Vars  map[string]any    `json:"vars,omitempty"`
	}
	return json.Marshal(alias{Steps: steps, Vars: s.Vars})
}

func decodeSteps(raws []json.RawMessage) ([]Step, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	steps := make([]Step, 0, len(raws))
	for i, raw := range raws {
		st, err := decodeStep(raw)
		if err != nil {
			return nil, fmt.Errorf("decode steps[%d]: %w", i, err)
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func decodeStep(raw json.RawMessage) (Step, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode step discriminator: %w", err)
	}
	switch head.Type {
	case StepTypeExtractInput:
		var st ExtractInputStep
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StepTypeToolCall:
		var st ToolCallStep
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StepTypeIf:
		var tmp struct {
			Condition string            `json:"condition"`
			Then      []json.RawMessage `json:"then"`
			Else      []json.RawMessage `json:"else"`
		}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, err
		}
		thenSteps, err := decodeSteps(tmp.Then)
		if err != nil {
			return nil, fmt.Errorf("then: %w", err)
		}
		elseSteps, err := decodeSteps(tmp.Else)
		if err != nil {
			return nil, fmt.Errorf("else: %w", err)
		}
		return IfStep{Condition: tmp.Condition, Then: thenSteps, Else: elseSteps}, nil
	case StepTypeAssistantMessage:
		var st AssistantMessageStep
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		return st, nil
	case StepTypeHalt:
		return HaltStep{}, nil
	case "":
		return nil, errors.New("step is missing the type discriminator")
	default:
		return nil, fmt.Errorf("unknown step type %q", head.Type)
	}
}

func encodeStep(st Step) (json.RawMessage, error) {
	if st == nil {
		return nil, errors.New("nil step")
	}
	switch v := st.(type) {
	case ExtractInputStep:
		return json.Marshal(struct {
			Type string            `json:"type"`
			Vars map[string]string `json:"vars"`
		}{StepTypeExtractInput, v.Vars})
	case ToolCallStep:
		return json.Marshal(struct {
			Type      string         `json:"type"`
			Recipient string         `json:"recipient"`
			Channel   Channel        `json:"channel"`
			Args      map[string]any `json:"args,omitempty"`
			SaveAs    string         `json:"save_as,omitempty"`
		}{StepTypeToolCall, v.Recipient, v.Channel, v.Args, v.SaveAs})
	case IfStep:
		thenSteps := make([]json.RawMessage, 0, len(v.Then))
		for _, s := range v.Then {
			raw, err := encodeStep(s)
			if err != nil {
				return nil, err
			}
			thenSteps = append(thenSteps, raw)
		}
		elseSteps := make([]json.RawMessage, 0, len(v.Else))
		for _, s := range v.Else {
			raw, err := encodeStep(s)
			if err != nil {
				return nil, err
			}
			elseSteps = append(elseSteps, raw)
		}
		return json.Marshal(struct {
			Type      string            `json:"type"`
			Condition string            `json:"condition"`
			Then      []json.RawMessage `json:"then,omitempty"`
			Else      []json.RawMessage `json:"else,omitempty"`
		}{StepTypeIf, v.Condition, thenSteps, elseSteps})
	case AssistantMessageStep:
		return json.Marshal(struct {
			Type            string  `json:"type"`
			Channel         Channel `json:"channel"`
			Content         string  `json:"content,omitempty"`
			ContentTemplate string  `json:"contentTemplate,omitempty"`
		}{StepTypeAssistantMessage, v.Channel, v.Content, v.ContentTemplate})
	case HaltStep:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{StepTypeHalt})
	default:
		return nil, fmt.Errorf("unknown step implementation %T", st)
	}
}
