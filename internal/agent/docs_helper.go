package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
)

// DocsCategory 是文档请求的分类结果
type DocsCategory struct {
	Primary   string   `json:"primary"`
	Secondary string   `json:"secondary,omitempty"`
	Keywords  []string `json:"keywords"`
}

const maxDocKeywords = 5

// CategorizeDocsRequest 根据关键词判断文档大类，并抽取长度大于 3 的前 5 个词作为关键字。
func CategorizeDocsRequest(query string) DocsCategory {
	q := strings.ToLower(query)

	var c DocsCategory
	switch {
	case containsAny(q, "api", "endpoint"):
		c = DocsCategory{Primary: "api", Secondary: "reference"}
	case containsAny(q, "admin", "configure"):
		c = DocsCategory{Primary: "admin", Secondary: "setup"}
	case containsAny(q, "start", "begin"):
		c = DocsCategory{Primary: "getting_started"}
	case strings.Contains(q, "skill"):
		c = DocsCategory{Primary: "user", Secondary: "skills"}
	case strings.Contains(q, "workflow"):
		c = DocsCategory{Primary: "user", Secondary: "workflows"}
	case strings.Contains(q, "integration"):
		c = DocsCategory{Primary: "admin", Secondary: "integrations"}
	case containsAny(q, "error", "troubleshoot"):
		c = DocsCategory{Primary: "troubleshooting"}
	case containsAny(q, "release", "new"):
		c = DocsCategory{Primary: "release_notes"}
	default:
		c = DocsCategory{Primary: "user"}
	}

	c.Keywords = []string{}
	for _, w := range strings.Fields(q) {
		if len(c.Keywords) == maxDocKeywords {
			break
		}
		if len(w) > 3 {
			c.Keywords = append(c.Keywords, w)
		}
	}
	return c
}

// docsHelperGraph: analyze -> categorize -> search_docs(primary) -> respond
func docsHelperGraph() *graph.Builder {
	return pipeline("docs_helper_agent",
		newClassifyNode(NodeCategorize, "Categorizes the documentation request", KeyDocsCategory, func(query string) any {
			return CategorizeDocsRequest(query)
		}),
		searchDocsNode("Searches documentation based on categorized request", func(s *state.ConversationState, query string) map[string]any {
			c := state.ContextValue(s, KeyDocsCategory, DocsCategory{Primary: "user"})
			return map[string]any{"query": query, "category": c.Primary, "limit": 5}
		}),
	)
}

type docsSection struct {
	heading string
	intro   string
	items   []string
	links   [][2]string
}

var docsSections = map[string]docsSection{
	"api": {
		heading: "API Documentation",
		intro:   "The WatsonX Orchestrate API documentation covers:",
		items: []string{
			"- **Authentication**: How to obtain and use API tokens",
			"- **Skills API**: Create, manage, and execute skills",
			"- **Workflows API**: Manage workflow definitions",
			"- **Users API**: User and team management",
		},
		links: [][2]string{
			{"API Reference", "https://www.ibm.com/docs/watsonx-orchestrate/api"},
			{"Authentication Guide", "https://www.ibm.com/docs/watsonx-orchestrate/api/auth"},
		},
	},
	"admin": {
		heading: "Administration Documentation",
		intro:   "Admin documentation helps you:",
		items: []string{
			"- **Set up** your WXO environment",
			"- **Configure** security and access control",
			"- **Manage** users, teams, and permissions",
			"- **Integrate** with external services",
		},
		links: [][2]string{
			{"Admin Guide", "https://www.ibm.com/docs/watsonx-orchestrate/admin"},
			{"Security Configuration", "https://www.ibm.com/docs/watsonx-orchestrate/security"},
		},
	},
	"getting_started": {
		heading: "Getting Started",
		intro:   "Welcome to WatsonX Orchestrate! Here's how to begin:",
		items: []string{
			"1. **First Steps**: Log in and explore the interface",
			"2. **Try a Skill**: Use a pre-built skill from the catalog",
			"3. **Create Your Own**: Build a simple custom skill",
			"4. **Automate**: Combine skills into workflows",
		},
		links: [][2]string{
			{"Quick Start Guide", "https://www.ibm.com/docs/watsonx-orchestrate/quickstart"},
			{"Tutorial Videos", "https://www.ibm.com/docs/watsonx-orchestrate/tutorials"},
		},
	},
	"troubleshooting": {
		heading: "Troubleshooting Documentation",
		intro:   "Find solutions for common issues:",
		items: []string{
			"- **Authentication Issues**: Login and access problems",
			"- **Skill Errors**: Execution failures and debugging",
			"- **Integration Problems**: Connection and sync issues",
			"- **Performance**: Slow operations and timeouts",
		},
		links: [][2]string{
			{"Troubleshooting Guide", "https://www.ibm.com/docs/watsonx-orchestrate/troubleshooting"},
			{"Known Issues", "https://www.ibm.com/docs/watsonx-orchestrate/known-issues"},
		},
	},
	"release_notes": {
		heading: "Release Notes",
		intro:   "Stay up to date with WatsonX Orchestrate:",
		items: []string{
			"- **New Features**: Latest capabilities added",
			"- **Improvements**: Enhancements to existing features",
			"- **Bug Fixes**: Issues that have been resolved",
			"- **Breaking Changes**: Updates that may require action",
		},
		links: [][2]string{
			{"Latest Release Notes", "https://www.ibm.com/docs/watsonx-orchestrate/release-notes"},
			{"Roadmap", "https://www.ibm.com/docs/watsonx-orchestrate/roadmap"},
		},
	},
	"user": {
		heading: "User Documentation",
		intro:   "User documentation helps you work effectively:",
		items: []string{
			"- **Skills**: Create and use automation skills",
			"- **Workflows**: Build multi-step automations",
			"- **Catalog**: Find pre-built integrations",
			"- **AI Features**: Natural language interaction",
		},
		links: [][2]string{
			{"User Guide", "https://www.ibm.com/docs/watsonx-orchestrate/user"},
			{"Skill Catalog", "https://www.ibm.com/docs/watsonx-orchestrate/catalog"},
		},
	},
}

const (
	docsListedPerResult = 3
	docsExcerptLen      = 100
)

func docsResponse(s *state.ConversationState) string {
	c := state.ContextValue(s, KeyDocsCategory, DocsCategory{Primary: "user"})
	sec, ok := docsSections[c.Primary]
	if !ok {
		sec = docsSections["user"]
	}

	var b strings.Builder
	b.WriteString("## 📚 Documentation Guide\n\n")
	fmt.Fprintf(&b, "### %s\n\n%s\n\n", sec.heading, sec.intro)
	for _, item := range sec.items {
		b.WriteString(item + "\n")
	}
	b.WriteString("\n**Quick Links:**\n")
	for _, l := range sec.links {
		fmt.Fprintf(&b, "- [%s](%s)\n", l[0], l[1])
	}

	if results := s.ToolMessages(); len(results) > 0 {
		b.WriteString("\n---\n\n### 🔍 Relevant Documentation Found\n\n")
		b.WriteString("Based on your query, here are the most relevant docs:\n\n")
		for _, r := range results {
			writeDocList(&b, r)
		}
	}

	b.WriteString("\n---\n\n")
	b.WriteString("**Can't find what you need?** Try asking a more specific question or ")
	b.WriteString("let me know which documentation category you're interested in.")
	return b.String()
}

// writeDocList 解析 search_wxo_docs 的 JSON 输出，列出前几篇文档；非文档数组的结果忽略。
func writeDocList(b *strings.Builder, result string) {
	var docs []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(result), &docs); err != nil {
		return
	}
	for i, d := range docs {
		if i == docsListedPerResult {
			break
		}
		if d.Title == "" || d.URL == "" {
			continue
		}
		fmt.Fprintf(b, "- **[%s](%s)**", d.Title, d.URL)
		if d.Content != "" {
			fmt.Fprintf(b, "\n  _%s_", excerpt(d.Content, docsExcerptLen))
		}
		b.WriteString("\n\n")
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
