package agent

import (
	"strings"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// adminSetupGraph: analyze -> search_docs(admin) -> respond
func adminSetupGraph() *graph.Builder {
	return pipeline("admin_setup_agent",
		searchDocsNode("Searches documentation with admin-focused context", func(_ *state.ConversationState, query string) map[string]any {
			return map[string]any{"query": query, "category": "admin", "limit": 5}
		}),
	)
}

func adminResponse(s *state.ConversationState) string {
	q := strings.ToLower(originalQuery(s))
	var b strings.Builder

	switch {
	case containsAny(q, "setup", "install"):
		b.WriteString("## WatsonX Orchestrate Setup Guide\n\n")
		b.WriteString("Here's how to set up WatsonX Orchestrate:\n\n")
		b.WriteString("1. **Access the Admin Console**: Navigate to your WXO instance and log in with admin credentials.\n\n")
		b.WriteString("2. **Configure Identity Provider**: Set up SSO or local authentication under Settings > Security.\n\n")
		b.WriteString("3. **Create User Groups**: Define roles and permissions in Settings > Users & Teams.\n\n")
		b.WriteString("4. **Set Up Integrations**: Connect external services in Settings > Integrations.\n\n")
	case containsAny(q, "user", "permission"):
		b.WriteString("## User Management\n\n")
		b.WriteString("To manage users in WatsonX Orchestrate:\n\n")
		b.WriteString("1. Go to **Settings > Users & Teams**\n")
		b.WriteString("2. Click **Add User** to invite new users\n")
		b.WriteString("3. Assign appropriate roles (Admin, Developer, User)\n")
		b.WriteString("4. Configure team memberships for collaboration\n\n")
		b.WriteString("**Tip**: Use groups to manage permissions at scale.\n")
	case containsAny(q, "security", "authentication"):
		b.WriteString("## Security Configuration\n\n")
		b.WriteString("Security best practices for WatsonX Orchestrate:\n\n")
		b.WriteString("- Enable **Multi-Factor Authentication** (MFA) for all admin accounts\n")
		b.WriteString("- Configure **Session Timeouts** appropriately\n")
		b.WriteString("- Set up **Audit Logging** to track changes\n")
		b.WriteString("- Review **API Key** permissions regularly\n")
		b.WriteString("- Use **Least Privilege** principle for user roles\n")
	case strings.Contains(q, "integration"):
		b.WriteString("## Integration Setup\n\n")
		b.WriteString("To configure integrations:\n\n")
		b.WriteString("1. Navigate to **Settings > Integrations**\n")
		b.WriteString("2. Select the integration type (Salesforce, ServiceNow, etc.)\n")
		b.WriteString("3. Provide the required credentials\n")
		b.WriteString("4. Configure sync settings and permissions\n")
		b.WriteString("5. Test the connection before enabling\n")
	default:
		b.WriteString("I'm here to help you with WatsonX Orchestrate administration.\n\n")
		b.WriteString("I can assist with:\n")
		b.WriteString("- Initial setup and configuration\n")
		b.WriteString("- User and team management\n")
		b.WriteString("- Security settings\n")
		b.WriteString("- Integration configuration\n")
		b.WriteString("- API key management\n\n")
		b.WriteString("What would you like help with?")
	}

	if len(s.ToolMessages()) > 0 {
		b.WriteString("\n\n---\n\n**📚 Related Documentation:**\n")
		b.WriteString("I found some relevant documentation that might help. ")
		b.WriteString("Check the search results above for more details.")
	}
	return b.String()
}
