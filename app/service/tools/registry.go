package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"forager/app/util/metrics"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Handler runs one capability with the raw JSON arguments sent by the model.
type Handler func(ctx context.Context, arguments string) (string, error)

type Registry struct {
	capabilities []Capability
	handlers     map[string]Handler
}

// NewRegistry pairs every capability with its handler and fails on any
// mismatch between the two.
func NewRegistry(capabilities []Capability, handlers map[string]Handler) (*Registry, error) {
	seen := make(map[string]struct{}, len(capabilities))

	for _, c := range capabilities {
		if c.Name == "" || c.Description == "" {
			return nil, fmt.Errorf("capability %q must have a name and a description", c.Name)
		}
		if _, ok := seen[c.Name]; ok {
			return nil, fmt.Errorf("capability %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}

		if handlers[c.Name] == nil {
			return nil, fmt.Errorf("capability %q has no handler", c.Name)
		}

		for _, p := range c.Params {
			if len(p.Enum) > 0 && p.Type != TypeString {
				return nil, fmt.Errorf("capability %q: enum on non-string parameter %q", c.Name, p.Name)
			}
		}
	}

	for name := range handlers {
		if _, ok := seen[name]; !ok {
			return nil, fmt.Errorf("handler %q has no capability", name)
		}
	}

	return &Registry{
		capabilities: slices.Clone(capabilities),
		handlers:     maps.Clone(handlers),
	}, nil
}

func (r *Registry) Capabilities() []Capability {
	return r.capabilities
}

func (r *Registry) Names() []string {
	return pie.Map(r.capabilities, func(c Capability) string {
		return c.Name
	})
}

// Definitions returns the catalogue in the form attached to model calls.
func (r *Registry) Definitions() []llms.Tool {
	return pie.Map(r.capabilities, Capability.Definition)
}

// Call runs the named capability and returns its result or error.
func (r *Registry) Call(ctx context.Context, name, arguments string) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	return handler(ctx, arguments)
}

// Dispatch is Call with every failure rendered as text, so the model always
// receives a tool response.
func (r *Registry) Dispatch(ctx context.Context, name, arguments string) string {
	result, err := r.Call(ctx, name, arguments)

	switch {
	case errors.Is(err, ErrUnknownTool):
		metrics.ToolCalls.WithLabelValues("unknown", metrics.OutcomeError).Inc()
		return "Unknown tool: " + name
	case err != nil:
		slog.WarnContext(ctx, "Tool call failed", "tool", name, "error", err)
		metrics.ToolCalls.WithLabelValues(name, metrics.OutcomeError).Inc()
		return "Error " + err.Error()
	default:
		metrics.ToolCalls.WithLabelValues(name, metrics.OutcomeOK).Inc()
		return result
	}
}

// Extend registers external tools next to the built-in capabilities. A tool
// that reports its own parameter schema receives the raw arguments, any other
// tool takes a single required string input.
func (r *Registry) Extend(extra ...tools.Tool) error {
	for _, tool := range extra {
		name := tool.Name()
		if name == "" {
			return errors.New("external tool must have a name")
		}
		if _, ok := r.handlers[name]; ok {
			return fmt.Errorf("tool %q declared twice", name)
		}

		description := tool.Description()
		if description == "" {
			description = "External tool " + name
		}

		capability := Capability{Name: name, Description: description}
		handler := Handler(tool.Call)

		if s, ok := tool.(schemaTool); ok && s.Schema() != nil {
			capability.RawSchema = s.Schema()
		} else {
			capability.Params = []Param{{
				Name:        inputParam,
				Type:        TypeString,
				Description: "Input passed to the tool",
				Required:    true,
			}}
			handler = Typed(func(ctx context.Context, args inputArgs) (string, error) {
				return tool.Call(ctx, args.Input)
			})
		}

		r.capabilities = append(r.capabilities, capability)
		r.handlers[name] = handler
	}

	return nil
}

const inputParam = "input"

type inputArgs struct {
	Input string `json:"input" validate:"required"`
}

type schemaTool interface {
	Schema() map[string]any
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Typed decodes and validates the arguments into A before calling fn.
func Typed[A any](fn func(ctx context.Context, args A) (string, error)) Handler {
	return func(ctx context.Context, arguments string) (string, error) {
		var args A
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("decoding arguments: %w: %w", ErrInvalidArguments, err)
		}

		if err := validate.Struct(args); err != nil {
			return "", fmt.Errorf("validating arguments: %w: %s", ErrInvalidArguments, describeValidation(err))
		}

		return fn(ctx, args)
	}
}

func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}

	messages := pie.Map(fieldErrors, func(fe validator.FieldError) string {
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("missing required argument %q", fe.Field())
		case "oneof":
			return fmt.Sprintf("argument %q must be one of [%s]", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("argument %q failed %s", fe.Field(), fe.Tag())
		}
	})

	return strings.Join(messages, "; ")
}

// Static builds handlers that return fixed text per capability.
func Static(responses map[string]string) map[string]Handler {
	handlers := make(map[string]Handler, len(responses))
	for name, response := range responses {
		handlers[name] = func(context.Context, string) (string, error) {
			return response, nil
		}
	}
	return handlers
}
