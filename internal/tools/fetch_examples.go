package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const (
	FetchExamplesName = "fetch_wxo_examples"

	defaultExamplesLimit = 3
)

type Example struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Code        string   `json:"code"`
	Tags        []string `json:"tags"`
}

var builtinExamples = []Example{
	{
		Title:       "Basic Skill Definition",
		Description: "A simple skill that processes text input",
		Language:    "json",
		Code: `{
  "name": "text_processor",
  "description": "Processes and transforms text",
  "input_schema": {
    "type": "object",
    "properties": {
      "text": { "type": "string" },
      "operation": { "type": "string", "enum": ["uppercase", "lowercase", "reverse"] }
    },
    "required": ["text", "operation"]
  },
  "output_schema": {
    "type": "object",
    "properties": {
      "result": { "type": "string" }
    }
  }
}`,
		Tags: []string{"skill", "basic"},
	},
	{
		Title:       "Python Skill Implementation",
		Description: "Python code for a custom WXO skill",
		Language:    "python",
		Code: `from wxo_sdk import Skill, SkillInput, SkillOutput

class DataValidatorSkill(Skill):
    """Validates input data against defined rules."""

    def execute(self, input: SkillInput) -> SkillOutput:
        data = input.get("data")
        rules = input.get("rules", [])

        errors = []
        for rule in rules:
            if not self._validate_rule(data, rule):
                errors.append(f"Validation failed: {rule['name']}")

        return SkillOutput(
            success=len(errors) == 0,
            errors=errors,
            validated_data=data if not errors else None
        )

    def _validate_rule(self, data, rule):
        # Rule validation logic here
        return True`,
		Tags: []string{"skill", "python", "validation"},
	},
	{
		Title:       "Sequential Workflow",
		Description: "A workflow that executes skills in sequence",
		Language:    "json",
		Code: `{
  "name": "customer_onboarding",
  "description": "Automated customer onboarding workflow",
  "steps": [
    {
      "id": "validate_input",
      "skill_id": "data_validator",
      "input": { "data": "{{trigger.customer_data}}" }
    },
    {
      "id": "create_account",
      "skill_id": "crm_create_account",
      "input": { "customer": "{{steps.validate_input.output}}" }
    },
    {
      "id": "send_welcome",
      "skill_id": "email_sender",
      "input": {
        "to": "{{trigger.customer_data.email}}",
        "template": "welcome_email"
      }
    }
  ],
  "error_handling": {
    "on_failure": "notify_admin"
  }
}`,
		Tags: []string{"workflow", "onboarding"},
	},
	{
		Title:       "API Authentication",
		Description: "Authenticating with the WXO API",
		Language:    "python",
		Code: `import requests

def get_wxo_token(api_key: str, instance_url: str) -> str:
    """Obtain an access token for WatsonX Orchestrate API."""

    response = requests.post(
        f"{instance_url}/api/v1/auth/token",
        headers={
            "Content-Type": "application/json",
            "X-API-Key": api_key
        }
    )
    response.raise_for_status()
    return response.json()["access_token"]

# Usage
token = get_wxo_token(
    api_key="your-api-key",
    instance_url="https://your-instance.watsonx-orchestrate.ibm.com"
)`,
		Tags: []string{"api", "authentication", "python"},
	},
	{
		Title:       "JavaScript API Client",
		Description: "Using the WXO API from JavaScript",
		Language:    "javascript",
		Code: `class WXOClient {
  constructor(instanceUrl, apiKey) {
    this.instanceUrl = instanceUrl;
    this.apiKey = apiKey;
    this.token = null;
  }

  async authenticate() {
    const response = await fetch(` + "`${this.instanceUrl}/api/v1/auth/token`" + `, {
      method: 'POST',
      headers: {
        'Content-Type': 'application/json',
        'X-API-Key': this.apiKey
      }
    });
    const data = await response.json();
    this.token = data.access_token;
    return this.token;
  }

  async executeSkill(skillId, input) {
    if (!this.token) await this.authenticate();

    const response = await fetch(` + "`${this.instanceUrl}/api/v1/skills/${skillId}/execute`" + `, {
      method: 'POST',
      headers: {
        'Authorization': ` + "`Bearer ${this.token}`" + `,
        'Content-Type': 'application/json'
      },
      body: JSON.stringify({ input })
    });
    return response.json();
  }
}`,
		Tags: []string{"api", "javascript", "client"},
	},
	{
		Title:       "Salesforce Integration Config",
		Description: "Configuration for Salesforce integration",
		Language:    "json",
		Code: `{
  "type": "salesforce",
  "name": "production_salesforce",
  "credentials": {
    "auth_type": "oauth2",
    "client_id": "{{secrets.SF_CLIENT_ID}}",
    "client_secret": "{{secrets.SF_CLIENT_SECRET}}",
    "instance_url": "https://your-org.salesforce.com"
  },
  "settings": {
    "api_version": "v58.0",
    "rate_limit": {
      "requests_per_minute": 100
    },
    "retry": {
      "max_attempts": 3,
      "backoff_ms": 1000
    }
  },
  "sync": {
    "objects": ["Account", "Contact", "Opportunity"],
    "direction": "bidirectional",
    "frequency": "real-time"
  }
}`,
		Tags: []string{"integration", "salesforce"},
	},
	{
		Title:       "Error Handling Pattern",
		Description: "Best practice for error handling in workflows",
		Language:    "json",
		Code: `{
  "name": "robust_workflow",
  "steps": [
    {
      "id": "main_task",
      "skill_id": "important_operation",
      "retry": {
        "max_attempts": 3,
        "backoff": "exponential",
        "initial_delay_ms": 1000
      },
      "timeout_ms": 30000
    }
  ],
  "error_handling": {
    "on_failure": {
      "steps": [
        {
          "id": "log_error",
          "skill_id": "error_logger",
          "input": { "error": "{{error}}" }
        },
        {
          "id": "notify_team",
          "skill_id": "slack_notifier",
          "input": {
            "channel": "#alerts",
            "message": "Workflow failed: {{workflow.name}}"
          }
        }
      ]
    },
    "on_timeout": {
      "action": "cancel_and_notify"
    }
  }
}`,
		Tags: []string{"workflow", "error-handling", "best-practices"},
	},
}

// FindExamples 按语言与主题筛选内置示例，保持语料顺序。
func FindExamples(topic, language string, limit int) []Example {
	if limit <= 0 {
		limit = defaultExamplesLimit
	}
	out := []Example{}
	for _, ex := range builtinExamples {
		if language != "" && !strings.EqualFold(ex.Language, language) {
			continue
		}
		fields := append([]string{ex.Title, ex.Description}, ex.Tags...)
		if !MatchText(topic, fields...) {
			continue
		}
		out = append(out, ex)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FetchExamplesTool 返回技能、工作流、集成与 API 的示例代码
type FetchExamplesTool struct{}

func (t *FetchExamplesTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: FetchExamplesName,
		Desc: "Fetch code examples and sample configurations for WatsonX Orchestrate. Returns relevant examples for skills, workflows, integrations, and API usage.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"topic": {
				Desc:     "Topic to find examples for (e.g., 'skill creation', 'salesforce integration', 'api authentication')",
				Type:     schema.String,
				Required: true,
			},
			"language": {
				Desc:     "Programming language filter (e.g., 'python', 'javascript', 'json')",
				Type:     schema.String,
				Required: false,
			},
			"limit": {
				Desc:     "Maximum number of examples to return (default: 3)",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}, nil
}

func (t *FetchExamplesTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Topic    string `json:"topic"`
		Language string `json:"language"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	data, err := json.MarshalIndent(FindExamples(args.Topic, args.Language, args.Limit), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
