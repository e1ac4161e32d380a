package agent

import (
	"strings"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// usageAssistantGraph: analyze -(intent)-> fetch_examples | search_docs -> respond
func usageAssistantGraph() *graph.Builder {
	fetch := &queueToolNode{
		id:   NodeFetchExamples,
		desc: "Fetches code examples for the user's query",
		plan: func(s *state.ConversationState) (string, any, bool) {
			query := originalQuery(s)
			if query == "" {
				return "", nil, false
			}
			return fetchExamplesTool, map[string]any{"topic": query, "limit": 3}, true
		},
	}
	search := searchDocsNode("Searches user documentation", func(_ *state.ConversationState, query string) map[string]any {
		return map[string]any{"query": query, "category": "user", "limit": 5}
	})

	return graph.NewBuilder("usage_assistant_agent").
		AddNode(NewAnalyzeQueryNode(NodeAnalyze)).
		AddNode(fetch).
		AddNode(search).
		SetEntryPoint(NodeAnalyze).
		AddConditionalEdge(NodeAnalyze, routeUsage, NodeFetchExamples, NodeSearchDocs).
		AddEdge(NodeSearchDocs, NodeRespond).
		AddEdge(NodeFetchExamples, NodeRespond)
}

func routeUsage(s *state.ConversationState) string {
	if state.ContextValue(s, KeyUserIntent, IntentGeneral) == IntentExample {
		return NodeFetchExamples
	}
	return NodeSearchDocs
}

func usageResponse(s *state.ConversationState) string {
	q := strings.ToLower(originalQuery(s))
	var b strings.Builder

	switch {
	case strings.Contains(q, "skill"):
		b.WriteString("## Working with Skills\n\n")
		b.WriteString("Skills are the building blocks of WatsonX Orchestrate. Here's how to work with them:\n\n")
		b.WriteString("### Creating a Skill\n")
		b.WriteString("1. Click **+ New Skill** in the skill catalog\n")
		b.WriteString("2. Choose a skill type (API, Custom, Pre-built)\n")
		b.WriteString("3. Define inputs and outputs\n")
		b.WriteString("4. Test your skill before publishing\n\n")
		b.WriteString("### Using Skills\n")
		b.WriteString("- Type naturally: \"Send an email to John about the meeting\"\n")
		b.WriteString("- WXO will find and execute the right skill\n")
		b.WriteString("- Review and confirm before execution\n")
	case containsAny(q, "workflow", "automation"):
		b.WriteString("## Building Workflows\n\n")
		b.WriteString("Workflows let you chain skills together for complex automations:\n\n")
		b.WriteString("1. **Design**: Map out the steps in your process\n")
		b.WriteString("2. **Build**: Add skills to your workflow canvas\n")
		b.WriteString("3. **Connect**: Define data flow between steps\n")
		b.WriteString("4. **Test**: Run the workflow with test data\n")
		b.WriteString("5. **Deploy**: Publish for your team to use\n\n")
		b.WriteString("**💡 Pro Tip**: Start simple and add complexity gradually.")
	case strings.Contains(q, "catalog"):
		b.WriteString("## Skill Catalog\n\n")
		b.WriteString("The catalog contains all available skills:\n\n")
		b.WriteString("- **Pre-built Skills**: Ready-to-use integrations (Salesforce, Slack, etc.)\n")
		b.WriteString("- **Custom Skills**: Created by your organization\n")
		b.WriteString("- **Personal Skills**: Your private skills\n\n")
		b.WriteString("Browse by category or search by keyword to find what you need.")
	case containsAny(q, "ai", "assistant"):
		b.WriteString("## AI Assistant Features\n\n")
		b.WriteString("WatsonX Orchestrate's AI understands natural language:\n\n")
		b.WriteString("- **Ask Questions**: \"What can you do?\"\n")
		b.WriteString("- **Execute Tasks**: \"Create a new support ticket\"\n")
		b.WriteString("- **Get Help**: \"How do I use the Salesforce integration?\"\n\n")
		b.WriteString("The AI learns from your usage patterns to provide better suggestions over time.")
	default:
		b.WriteString("## Getting Started with WatsonX Orchestrate\n\n")
		b.WriteString("Welcome! I can help you with:\n\n")
		b.WriteString("- **Skills**: Creating and using automation skills\n")
		b.WriteString("- **Workflows**: Building multi-step automations\n")
		b.WriteString("- **Catalog**: Finding pre-built integrations\n")
		b.WriteString("- **AI Features**: Natural language interaction\n\n")
		b.WriteString("What would you like to learn about?")
	}

	if len(s.ToolMessages()) > 0 {
		b.WriteString("\n\n---\n\n**📋 Additional Resources:**\n")
		b.WriteString("I found some relevant information. Check the details above.")
	}
	return b.String()
}
