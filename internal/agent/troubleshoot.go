package agent

import (
	"fmt"
	"strings"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// Diagnosis 是 diagnose 节点对问题的初步归类
type Diagnosis struct {
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	LikelyCauses    []string `json:"likely_causes"`
	SuggestedChecks []string `json:"suggested_checks"`
}

// DiagnoseIssue 按关键词把问题归入 authentication / performance / integration / execution / general
func DiagnoseIssue(query string) Diagnosis {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "authentication", "login", "access denied", "401"):
		return Diagnosis{
			Category: "authentication",
			Severity: "high",
			LikelyCauses: []string{
				"Expired credentials or tokens",
				"Incorrect SSO configuration",
				"User permissions not set correctly",
				"API key revoked or expired",
			},
			SuggestedChecks: []string{
				"Verify credentials are correct",
				"Check token expiration",
				"Review user permissions",
				"Test SSO configuration",
			},
		}
	case containsAny(q, "timeout", "slow", "performance"):
		return Diagnosis{
			Category: "performance",
			Severity: "medium",
			LikelyCauses: []string{
				"High system load",
				"Network latency",
				"Large data volumes",
				"Resource constraints",
			},
			SuggestedChecks: []string{
				"Check system status page",
				"Monitor network connectivity",
				"Review workflow complexity",
				"Check concurrent user count",
			},
		}
	case containsAny(q, "integration", "connection", "api"):
		return Diagnosis{
			Category: "integration",
			Severity: "medium",
			LikelyCauses: []string{
				"External service unavailable",
				"Credentials expired",
				"API rate limit exceeded",
				"Configuration mismatch",
			},
			SuggestedChecks: []string{
				"Verify external service status",
				"Check integration credentials",
				"Review API rate limits",
				"Test connection settings",
			},
		}
	case containsAny(q, "skill", "workflow", "failed"):
		return Diagnosis{
			Category: "execution",
			Severity: "medium",
			LikelyCauses: []string{
				"Invalid input data",
				"Missing required parameters",
				"Skill configuration error",
				"Dependency failure",
			},
			SuggestedChecks: []string{
				"Review input data format",
				"Check required parameters",
				"Validate skill configuration",
				"Check execution logs",
			},
		}
	}
	return Diagnosis{
		Category: "general",
		Severity: "low",
		LikelyCauses: []string{
			"Configuration issue",
			"User error",
			"Temporary system issue",
		},
		SuggestedChecks: []string{
			"Describe the issue in more detail",
			"Check system status",
			"Review recent changes",
		},
	}
}

// troubleshootGraph: analyze -> diagnose -> search_docs(troubleshooting) -> respond
func troubleshootGraph() *graph.Builder {
	return pipeline("troubleshoot_agent",
		newClassifyNode(NodeDiagnose, "Diagnoses the issue based on user description", KeyDiagnosis, func(query string) any {
			return DiagnoseIssue(query)
		}),
		searchDocsNode("Searches troubleshooting documentation", func(s *state.ConversationState, query string) map[string]any {
			d := state.ContextValue(s, KeyDiagnosis, Diagnosis{Category: "general"})
			return map[string]any{
				"query":    d.Category + " " + query,
				"category": "troubleshooting",
				"limit":    5,
			}
		}),
	)
}

func troubleshootResponse(s *state.ConversationState) string {
	d := state.ContextValue(s, KeyDiagnosis, Diagnosis{Category: "general", Severity: "low"})
	var b strings.Builder

	fmt.Fprintf(&b, "## 🔍 Issue Analysis: %s\n\n", strings.ToUpper(d.Category))
	fmt.Fprintf(&b, "**Severity**: %s\n\n", severityLabel(d.Severity))

	b.WriteString("### Likely Causes\n")
	for _, c := range d.LikelyCauses {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n")

	b.WriteString("### Troubleshooting Steps\n\n")
	for i, c := range d.SuggestedChecks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\n")

	switch d.Category {
	case "authentication":
		b.WriteString("### Quick Fix Attempts\n")
		b.WriteString("1. Clear browser cache and cookies\n")
		b.WriteString("2. Try logging out and back in\n")
		b.WriteString("3. Check if your session has expired\n")
		b.WriteString("4. Verify your account is active\n\n")
		b.WriteString("**⚠️ If issues persist**, contact your administrator to verify your account permissions.")
	case "performance":
		b.WriteString("### Quick Fix Attempts\n")
		b.WriteString("1. Refresh the page\n")
		b.WriteString("2. Check your internet connection\n")
		b.WriteString("3. Try a different browser\n")
		b.WriteString("4. Check the WXO status page for outages\n\n")
		b.WriteString("**💡 Tip**: If working with large datasets, try processing in smaller batches.")
	case "integration":
		b.WriteString("### Quick Fix Attempts\n")
		b.WriteString("1. Test the external service directly\n")
		b.WriteString("2. Re-authenticate the integration\n")
		b.WriteString("3. Check for API version changes\n")
		b.WriteString("4. Review integration logs\n\n")
		b.WriteString("**⚠️ Note**: External service issues are outside WXO control.")
	case "execution":
		b.WriteString("### Quick Fix Attempts\n")
		b.WriteString("1. Verify input data format\n")
		b.WriteString("2. Check for required fields\n")
		b.WriteString("3. Review skill/workflow logs\n")
		b.WriteString("4. Test with simpler inputs\n\n")
		b.WriteString("**💡 Tip**: Use the validation tool to check your configuration.")
	default:
		b.WriteString("### Need More Information\n")
		b.WriteString("Could you provide more details about:\n")
		b.WriteString("- What exactly happened?\n")
		b.WriteString("- Any error messages shown?\n")
		b.WriteString("- When did this start?\n")
		b.WriteString("- Any recent changes?\n")
	}

	b.WriteString("\n\n---\n\n")
	b.WriteString("**Still having issues?** I can help you escalate to IBM Support if needed.")
	return b.String()
}

func severityLabel(severity string) string {
	switch severity {
	case "high":
		return "🔴 High"
	case "medium":
		return "🟡 Medium"
	}
	return "🟢 Low"
}
