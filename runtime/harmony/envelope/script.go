package envelope

type (
	// Script is the typed step program embedded in a harmony-script message
	// body: an ordered list of Steps plus optional default vars seeded into
	// the evaluation context before session vars are merged over them.
	Script struct {
		// Steps is the ordered step list.
		Steps []Step `json:"steps"`
		// Vars holds default variable bindings (string -> JSON value).
		Vars map[string]any `json:"vars,omitempty"`
	}

	// Step is the closed variant set of script steps, discriminated by the
	// "type" property on the wire. Implementations are ExtractInputStep,
	// ToolCallStep, IfStep, AssistantMessageStep, and HaltStep.
	Step interface {
		isStep()
		// StepType returns the wire discriminator for the variant.
		StepType() string
	}

	// ExtractInputStep evaluates a mapping of variable name to expression and
	// writes the results into the context vars.
	ExtractInputStep struct {
		// Vars maps target variable names to expressions ($vars.x, $input.x,
		// $len(...), $map(...)).
		Vars map[string]string `json:"vars"`
	}

	// ToolCallStep invokes an external tool and stores its result.
	ToolCallStep struct {
		// Recipient is the plugin.function identifier of the tool.
		Recipient string `json:"recipient"`
		// Channel must be commentary; any other value is an execution error.
		Channel Channel `json:"channel"`
		// Args are the invocation arguments. String values starting with "$"
		// are evaluated as expressions; everything else passes verbatim.
		Args map[string]any `json:"args,omitempty"`
		// SaveAs names the context variable receiving the tool result.
		SaveAs string `json:"save_as,omitempty"`
	}

	// IfStep branches on a boolean expression.
	IfStep struct {
		// Condition is the boolean expression selecting the branch.
		Condition string `json:"condition"`
		// Then runs when the condition is truthy.
		Then []Step `json:"then,omitempty"`
		// Else runs when the condition is falsy.
		Else []Step `json:"else,omitempty"`
	}

	// AssistantMessageStep emits assistant output on the analysis or final
	// channel, either from a literal or from a template.
	AssistantMessageStep struct {
		// Channel must be analysis or final.
		Channel Channel `json:"channel"`
		// Content is the literal output. Ignored when ContentTemplate is set.
		Content string `json:"content,omitempty"`
		// ContentTemplate is rendered with {{vars.x}} / {{input.x}}
		// placeholders before emission.
		ContentTemplate string `json:"contentTemplate,omitempty"`
	}

	// HaltStep terminates script execution.
	HaltStep struct{}
)

// Step discriminator values.
const (
	StepTypeExtractInput     = "extract-input"
	StepTypeToolCall         = "tool-call"
	StepTypeIf               = "if"
	StepTypeAssistantMessage = "assistant-message"
	StepTypeHalt             = "halt"
)

func (ExtractInputStep) isStep()     {}
func (ToolCallStep) isStep()         {}
func (IfStep) isStep()               {}
func (AssistantMessageStep) isStep() {}
func (HaltStep) isStep()             {}

// StepType returns the wire discriminator.
func (ExtractInputStep) StepType() string { return StepTypeExtractInput }

// StepType returns the wire discriminator.
func (ToolCallStep) StepType() string { return StepTypeToolCall }

// StepType returns the wire discriminator.
func (IfStep) StepType() string { return StepTypeIf }

// StepType returns the wire discriminator.
func (AssistantMessageStep) StepType() string { return StepTypeAssistantMessage }

// StepType returns the wire discriminator.
func (HaltStep) StepType() string { return StepTypeHalt }
