// Package component implements structural dump/load for framework
// components: every serializable component renders to a
// ComponentModel carrying a provider tag, a JSON config, and a version, and
// loads back into a behaviorally equivalent instance. Components holding
// opaque callables (function-backed tools, workflow steps, logging/tracing
// middlewares holding owned resources) refuse serialization with
// ErrNotSerializable.
package component

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/kestrelai/agentkit/internal/middleware"
	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/internal/termination"
	"github.com/kestrelai/agentkit/pkg/types"
)

// ErrNotSerializable is returned for components that hold opaque callables
// or owned runtime resources.
var ErrNotSerializable = errors.New("component is not serializable")

// Model is the structural serialization of one component. Config holds only
// JSON-representable values; nested components appear as nested Models.
type Model struct {
	Provider string          `json:"provider"`
	Version  int             `json:"version"`
	Config   json.RawMessage `json:"config"`
}

const currentVersion = 1

// Dumper is implemented by components that know how to serialize
// themselves; Dump consults it before falling back to the built-in type
// switch.
type Dumper interface {
	DumpComponent() (Model, error)
}

// Dump serializes a framework component to its Model.
func Dump(v any) (Model, error) {
	if d, ok := v.(Dumper); ok {
		return d.DumpComponent()
	}
	switch c := v.(type) {
	case *termination.MaxMessages:
		return model("termination.max_messages", map[string]any{"n": c.N})
	case *termination.TextMention:
		return model("termination.text_mention", map[string]any{
			"text":           c.Text,
			"case_sensitive": c.CaseSensitive,
		})
	case *termination.Composite:
		children := make([]Model, len(c.Children))
		for i, child := range c.Children {
			m, err := Dump(child)
			if err != nil {
				return Model{}, err
			}
			children[i] = m
		}
		return model("termination.composite", map[string]any{
			"mode":     string(c.Mode),
			"children": children,
		})
	case *middleware.PIIRedactionMiddleware:
		type redaction struct {
			Name        string `json:"name"`
			Pattern     string `json:"pattern"`
			Replacement string `json:"replacement"`
		}
		var rs []redaction
		for _, r := range c.Redactions() {
			rs = append(rs, redaction{Name: r.Name, Pattern: r.Pattern.String(), Replacement: r.Replacement})
		}
		return model("middleware.pii_redaction", map[string]any{"redactions": rs})
	case *middleware.RateLimitMiddleware:
		return model("middleware.rate_limit", map[string]any{
			"per_minute": c.PerMinute(),
			"burst":      c.Burst(),
			"blocking":   c.Blocking,
		})
	case *middleware.SecurityMiddleware:
		return model("middleware.security", map[string]any{
			"denylist":       c.Denylist(),
			"case_sensitive": c.CaseSensitive(),
		})
	case *middleware.ContextCompactionMiddleware:
		return model("middleware.context_compaction", map[string]any{"max_turns": c.MaxTurns})
	case *middleware.TokenTrackingMiddleware:
		return model("middleware.token_tracking", map[string]any{"prices": c.Prices})
	case *schema.Spec:
		return model("schema.spec", map[string]any{"name": c.Name, "raw": c.Raw})
	case *middleware.LoggingMiddleware, *middleware.TracingMiddleware, *middleware.MetricsMiddleware:
		return Model{}, fmt.Errorf("%T holds an owned runtime resource: %w", v, ErrNotSerializable)
	default:
		return Model{}, fmt.Errorf("%T: %w", v, ErrNotSerializable)
	}
}

// Load reconstructs a component from its Model. The returned value has the
// same concrete type Dump consumed.
func Load(m Model) (any, error) {
	switch m.Provider {
	case "termination.max_messages":
		var cfg struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return termination.NewMaxMessages(cfg.N), nil
	case "termination.text_mention":
		var cfg struct {
			Text          string `json:"text"`
			CaseSensitive bool   `json:"case_sensitive"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return termination.NewTextMention(cfg.Text, cfg.CaseSensitive), nil
	case "termination.composite":
		var cfg struct {
			Mode     string  `json:"mode"`
			Children []Model `json:"children"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		children := make([]termination.Condition, len(cfg.Children))
		for i, cm := range cfg.Children {
			child, err := Load(cm)
			if err != nil {
				return nil, err
			}
			cond, ok := child.(termination.Condition)
			if !ok {
				return nil, loadErr(m, fmt.Errorf("child %d is not a termination condition", i))
			}
			children[i] = cond
		}
		return termination.NewComposite(termination.Mode(cfg.Mode), children...), nil
	case "middleware.pii_redaction":
		var cfg struct {
			Redactions []struct {
				Name        string `json:"name"`
				Pattern     string `json:"pattern"`
				Replacement string `json:"replacement"`
			} `json:"redactions"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		var rs []middleware.Redaction
		for _, r := range cfg.Redactions {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return nil, loadErr(m, err)
			}
			rs = append(rs, middleware.Redaction{Name: r.Name, Pattern: re, Replacement: r.Replacement})
		}
		return middleware.NewPIIRedactionMiddleware(rs...), nil
	case "middleware.rate_limit":
		var cfg struct {
			PerMinute int  `json:"per_minute"`
			Burst     int  `json:"burst"`
			Blocking  bool `json:"blocking"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		mw := middleware.NewRateLimitMiddleware(cfg.PerMinute, cfg.Burst)
		mw.Blocking = cfg.Blocking
		return mw, nil
	case "middleware.security":
		var cfg struct {
			Denylist      []string `json:"denylist"`
			CaseSensitive bool     `json:"case_sensitive"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return middleware.NewSecurityMiddleware(cfg.Denylist, cfg.CaseSensitive), nil
	case "middleware.context_compaction":
		var cfg struct {
			MaxTurns int `json:"max_turns"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return middleware.NewContextCompactionMiddleware(cfg.MaxTurns), nil
	case "middleware.token_tracking":
		var cfg struct {
			Prices types.PriceTable `json:"prices"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return middleware.NewTokenTrackingMiddleware(cfg.Prices), nil
	case "schema.spec":
		var cfg struct {
			Name string          `json:"name"`
			Raw  json.RawMessage `json:"raw"`
		}
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			return nil, loadErr(m, err)
		}
		return schema.Compile(cfg.Name, cfg.Raw)
	default:
		return nil, fmt.Errorf("component: unknown provider %q", m.Provider)
	}
}

func model(provider string, config any) (Model, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return Model{}, fmt.Errorf("component %s: %w", provider, err)
	}
	return Model{Provider: provider, Version: currentVersion, Config: raw}, nil
}

func loadErr(m Model, err error) error {
	return fmt.Errorf("component %s: %w", m.Provider, err)
}
