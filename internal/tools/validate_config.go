package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	ValidateConfigName = "validate_wxo_config"

	maxSkillNameLen    = 64
	maxSessionTimeoutS = 86400
)

const (
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeInvalidNameFormat    = "INVALID_NAME_FORMAT"
	CodeNameTooLong          = "NAME_TOO_LONG"
	CodeEmptySteps           = "EMPTY_STEPS"
	CodeInvalidStep          = "INVALID_STEP"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Valid       bool                `json:"valid"`
	Errors      []ValidationError   `json:"errors"`
	Warnings    []ValidationWarning `json:"warnings"`
	Suggestions []string            `json:"suggestions"`
}

func (r *ValidationResult) fail(field, message, code string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Code: code})
}

func (r *ValidationResult) warn(field, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message})
}

func (r *ValidationResult) finish(suggestions ...string) ValidationResult {
	r.Suggestions = append(r.Suggestions, suggestions...)
	r.Valid = len(r.Errors) == 0
	return *r
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors:      []ValidationError{},
		Warnings:    []ValidationWarning{},
		Suggestions: []string{},
	}
}

// ValidateConfig 按配置类型执行校验，未知类型返回错误。
func ValidateConfig(configType string, cfg map[string]any) (ValidationResult, error) {
	switch configType {
	case "skill":
		return validateSkill(cfg), nil
	case "workflow":
		return validateWorkflow(cfg), nil
	case "integration":
		return validateIntegration(cfg), nil
	case "authentication":
		return validateAuthentication(cfg), nil
	}
	return ValidationResult{}, fmt.Errorf("unknown config type: %s", configType)
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func validateSkill(cfg map[string]any) ValidationResult {
	r := newValidationResult()
	if !has(cfg, "name") {
		r.fail("name", "Skill name is required", CodeMissingRequiredField)
	}
	if !has(cfg, "description") {
		r.warn("description", "Adding a description helps users understand what this skill does")
	}
	if !has(cfg, "input_schema") {
		r.warn("input_schema", "Defining an input schema improves validation and user experience")
	}
	if name, ok := cfg["name"].(string); ok {
		if strings.Contains(name, " ") {
			r.fail("name", "Skill name should not contain spaces. Use underscores or hyphens.", CodeInvalidNameFormat)
		}
		if len(name) > maxSkillNameLen {
			r.fail("name", "Skill name must be 64 characters or less", CodeNameTooLong)
		}
	}
	return r.finish(
		"Consider adding example inputs to help users understand expected values",
		"Add tags to make the skill easier to find in the catalog",
	)
}

func validateWorkflow(cfg map[string]any) ValidationResult {
	r := newValidationResult()
	if !has(cfg, "name") {
		r.fail("name", "Workflow name is required", CodeMissingRequiredField)
	}
	if !has(cfg, "steps") {
		r.fail("steps", "Workflow must have at least one step", CodeMissingRequiredField)
	} else if steps, ok := cfg["steps"].([]any); ok {
		if len(steps) == 0 {
			r.fail("steps", "Workflow must have at least one step", CodeEmptySteps)
		}
		for i, raw := range steps {
			step, _ := raw.(map[string]any)
			if !has(step, "skill_id") && !has(step, "action") {
				r.fail(fmt.Sprintf("steps[%d]", i), "Each step must have either a skill_id or action", CodeInvalidStep)
			}
		}
	}
	if !has(cfg, "error_handling") {
		r.warn("error_handling", "Consider adding error handling to make the workflow more robust")
	}
	return r.finish(
		"Add a timeout to prevent workflows from running indefinitely",
		"Consider adding conditional logic for different scenarios",
	)
}

func validateIntegration(cfg map[string]any) ValidationResult {
	r := newValidationResult()
	if !has(cfg, "type") {
		r.fail("type", "Integration type is required", CodeMissingRequiredField)
	}
	if !has(cfg, "credentials") {
		r.fail("credentials", "Integration credentials are required", CodeMissingRequiredField)
	}
	if creds, ok := cfg["credentials"].(map[string]any); ok && has(creds, "password") {
		r.warn("credentials.password", "Consider using API keys or OAuth instead of passwords")
	}
	if !has(cfg, "rate_limit") {
		r.warn("rate_limit", "Setting a rate limit prevents overloading the external service")
	}
	return r.finish(
		"Test the integration in a sandbox environment first",
		"Set up monitoring for integration failures",
	)
}

func validateAuthentication(cfg map[string]any) ValidationResult {
	r := newValidationResult()
	if !has(cfg, "method") {
		r.fail("method", "Authentication method is required", CodeMissingRequiredField)
	}
	switch cfg["method"] {
	case "basic":
		r.warn("method", "Basic authentication is less secure. Consider using OAuth or API keys")
	case "oauth":
		if !has(cfg, "token_refresh") {
			r.warn("token_refresh", "Configure token refresh to prevent authentication failures")
		}
	}
	if session, ok := cfg["session"].(map[string]any); ok {
		// 只认整数秒
		if t, ok := session["timeout"].(float64); ok && t == math.Trunc(t) && t > maxSessionTimeoutS {
			r.warn("session.timeout", "Session timeout longer than 24 hours may be a security risk")
		}
	}
	return r.finish(
		"Enable multi-factor authentication for admin accounts",
		"Set up audit logging for authentication events",
		"Regularly rotate API keys and tokens",
	)
}

// ValidateConfigTool 校验技能、工作流、集成与认证配置
type ValidateConfigTool struct{}

func (t *ValidateConfigTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ValidateConfigName,
		Desc: "Validate WatsonX Orchestrate configuration objects like skills, workflows, integrations, and authentication settings. Returns validation errors, warnings, and suggestions for improvement.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"config_type": {
				Desc:     "Type of configuration to validate",
				Type:     schema.String,
				Enum:     []string{"skill", "workflow", "integration", "authentication"},
				Required: true,
			},
			"config": {
				Desc:     "The configuration object to validate",
				Type:     schema.Object,
				Required: true,
			},
		}),
	}, nil
}

func (t *ValidateConfigTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		ConfigType string         `json:"config_type"`
		Config     map[string]any `json:"config"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	res, err := ValidateConfig(args.ConfigType, args.Config)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
