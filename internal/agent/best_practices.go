package agent

import (
	"fmt"
	"strings"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

const (
	TopicWorkflowDesign = "workflow_design"
	TopicPerformance    = "performance"
	TopicSecurity       = "security"
	TopicSkillDesign    = "skill_design"
	TopicCollaboration  = "collaboration"
	TopicErrorHandling  = "error_handling"
	TopicDeployment     = "deployment"
	TopicGeneral        = "general"
)

// BestPracticesTopic 识别用户关心的最佳实践主题
func BestPracticesTopic(query string) string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "workflow", "automation"):
		return TopicWorkflowDesign
	case containsAny(q, "performance", "speed"):
		return TopicPerformance
	case containsAny(q, "security", "permission"):
		return TopicSecurity
	case containsAny(q, "skill", "catalog"):
		return TopicSkillDesign
	case containsAny(q, "team", "collaborate"):
		return TopicCollaboration
	case containsAny(q, "error", "handle"):
		return TopicErrorHandling
	case containsAny(q, "test", "deploy"):
		return TopicDeployment
	}
	return TopicGeneral
}

// bestPracticesGraph: analyze -> assess -> search_docs(fetch_wxo_examples) -> respond
func bestPracticesGraph() *graph.Builder {
	examples := &queueToolNode{
		id:   NodeSearchDocs,
		desc: "Searches for relevant best practices documentation",
		plan: func(s *state.ConversationState) (string, any, bool) {
			if originalQuery(s) == "" {
				return "", nil, false
			}
			topic := state.ContextValue(s, KeyBPTopic, TopicGeneral)
			return fetchExamplesTool, map[string]any{
				"topic": strings.ReplaceAll(topic, "_", " ") + " best practices",
				"limit": 3,
			}, true
		},
	}

	return pipeline("best_practices_agent",
		newClassifyNode(NodeAssess, "Assesses the user's needs for best practices guidance", KeyBPTopic, func(query string) any {
			return BestPracticesTopic(query)
		}),
		examples,
	)
}

type practiceSection struct {
	title   string
	bullets []string
}

type practiceGuide struct {
	heading  string
	sections []practiceSection
}

var practiceGuides = map[string]practiceGuide{
	TopicWorkflowDesign: {"Workflow Design Principles", []practiceSection{
		{"Keep it Modular", []string{"Break complex workflows into reusable sub-workflows", "Each workflow should do one thing well", "Use consistent naming conventions"}},
		{"Plan for Failure", []string{"Add error handling at each critical step", "Use retries with exponential backoff", "Log failures for debugging"}},
		{"Document Everything", []string{"Add descriptions to workflows and steps", "Document expected inputs and outputs", "Maintain a changelog"}},
		{"Test Thoroughly", []string{"Test with edge cases", "Use staging environments", "Validate before production deployment"}},
	}},
	TopicPerformance: {"Performance Optimization", []practiceSection{
		{"Minimize External Calls", []string{"Batch operations when possible", "Cache frequently accessed data", "Use efficient queries"}},
		{"Optimize Workflow Design", []string{"Run independent steps in parallel", "Avoid unnecessary data transformations", "Set appropriate timeouts"}},
		{"Monitor and Measure", []string{"Track execution times", "Identify bottlenecks", "Set up alerts for slow operations"}},
		{"Resource Management", []string{"Be mindful of API rate limits", "Schedule heavy operations off-peak", "Clean up unused resources"}},
	}},
	TopicSecurity: {"Security Best Practices", []practiceSection{
		{"Access Control", []string{"Follow the principle of least privilege", "Review permissions regularly", "Use role-based access control (RBAC)"}},
		{"Credential Management", []string{"Never hardcode credentials", "Use secure secret storage", "Rotate credentials regularly"}},
		{"Data Protection", []string{"Encrypt sensitive data in transit and at rest", "Minimize data retention", "Audit data access"}},
		{"Monitoring & Compliance", []string{"Enable audit logging", "Set up security alerts", "Conduct regular security reviews"}},
	}},
	TopicSkillDesign: {"Skill Design Best Practices", []practiceSection{
		{"Clear Interface", []string{"Define explicit input/output schemas", "Use descriptive parameter names", "Provide helpful descriptions"}},
		{"Validation", []string{"Validate inputs early", "Return clear error messages", "Handle edge cases gracefully"}},
		{"Discoverability", []string{"Use meaningful skill names", "Add relevant tags", "Include usage examples"}},
		{"Maintainability", []string{"Version your skills", "Plan for backward compatibility", "Document changes"}},
	}},
	TopicErrorHandling: {"Error Handling Best Practices", []practiceSection{
		{"Anticipate Failures", []string{"External services can fail", "Data may be invalid", "Networks can be unreliable"}},
		{"Handle Gracefully", []string{"Catch specific exceptions", "Provide meaningful error messages", "Offer recovery options when possible"}},
		{"Retry Strategy", []string{"Use exponential backoff", "Set maximum retry limits", "Know when to give up"}},
		{"Logging & Alerting", []string{"Log errors with context", "Set up alerts for critical failures", "Track error patterns"}},
	}},
	TopicDeployment: {"Deployment Best Practices", []practiceSection{
		{"Environment Strategy", []string{"Use separate dev/staging/prod environments", "Test in staging first", "Use consistent configurations"}},
		{"Testing", []string{"Write automated tests", "Test with realistic data", "Perform load testing"}},
		{"Rollout Strategy", []string{"Use gradual rollouts", "Monitor after deployment", "Have a rollback plan"}},
		{"Documentation", []string{"Document deployment steps", "Maintain runbooks", "Keep change logs"}},
	}},
	TopicCollaboration: {"Team Collaboration Best Practices", []practiceSection{
		{"Organization", []string{"Use consistent naming conventions", "Organize skills and workflows logically", "Use tags for easy discovery"}},
		{"Sharing", []string{"Share reusable components", "Document shared resources", "Set appropriate permissions"}},
		{"Communication", []string{"Document changes clearly", "Notify teams of updates", "Establish review processes"}},
		{"Standards", []string{"Define coding standards", "Create templates", "Review and improve regularly"}},
	}},
}

func bestPracticesResponse(s *state.ConversationState) string {
	topic := state.ContextValue(s, KeyBPTopic, TopicGeneral)
	var b strings.Builder

	fmt.Fprintf(&b, "## 🏆 Best Practices: %s\n\n", strings.ToUpper(strings.ReplaceAll(topic, "_", " ")))

	if guide, ok := practiceGuides[topic]; ok {
		fmt.Fprintf(&b, "### %s\n\n", guide.heading)
		for i, sec := range guide.sections {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "**%d. %s**\n", i+1, sec.title)
			for _, item := range sec.bullets {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
	} else {
		b.WriteString("### General Best Practices\n\n")
		b.WriteString("**Start Simple**\n")
		b.WriteString("- Begin with basic implementations\n")
		b.WriteString("- Add complexity as needed\n")
		b.WriteString("- Iterate based on feedback\n\n")
		b.WriteString("**Document Everything**\n")
		b.WriteString("- Write clear descriptions\n")
		b.WriteString("- Maintain up-to-date documentation\n")
		b.WriteString("- Include examples\n\n")
		b.WriteString("**Test Thoroughly**\n")
		b.WriteString("- Test before deploying\n")
		b.WriteString("- Use realistic scenarios\n")
		b.WriteString("- Monitor in production\n\n")
		b.WriteString("What specific area would you like guidance on?\n")
		b.WriteString("- Workflow design\n")
		b.WriteString("- Performance optimization\n")
		b.WriteString("- Security\n")
		b.WriteString("- Skill development\n")
	}

	b.WriteString("\n\n---\n\n")
	b.WriteString("**💡 Need more specific advice?** Tell me about your use case and I can provide tailored recommendations.")
	return b.String()
}
