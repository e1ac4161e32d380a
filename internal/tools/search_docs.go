package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/wxorca/internal/storage"
)

const (
	SearchDocsName = "search_wxo_docs"

	defaultDocsLimit = 5
	docsBaseURL      = "https://www.ibm.com/docs/watsonx-orchestrate/"
)

// Doc 是一条文档检索结果
type Doc struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	URL       string  `json:"url"`
	Category  string  `json:"category"`
	Relevance float64 `json:"relevance"`
}

type DocQuery struct {
	Query    string
	Category string
	Limit    int
}

// DocSource 是文档检索后端
type DocSource interface {
	SearchDocs(ctx context.Context, q DocQuery) ([]Doc, error)
}

var builtinDocs = []Doc{
	{
		Title:     "Getting Started with WatsonX Orchestrate",
		Content:   "WatsonX Orchestrate is an AI-powered automation platform that helps you work more efficiently by automating repetitive tasks and providing intelligent assistance.",
		URL:       docsBaseURL + "getting-started",
		Category:  "user",
		Relevance: 0.95,
	},
	{
		Title:     "Admin Setup Guide",
		Content:   "This guide walks administrators through the initial setup of WatsonX Orchestrate, including user management, security configuration, and integration setup.",
		URL:       docsBaseURL + "admin-guide",
		Category:  "admin",
		Relevance: 0.92,
	},
	{
		Title:     "Creating Custom Skills",
		Content:   "Learn how to create custom skills in WatsonX Orchestrate. Skills are reusable automation components that can be combined into workflows.",
		URL:       docsBaseURL + "skills",
		Category:  "user",
		Relevance: 0.88,
	},
	{
		Title:     "API Reference",
		Content:   "Complete API reference for WatsonX Orchestrate, including authentication, skill management, and workflow execution endpoints.",
		URL:       docsBaseURL + "api",
		Category:  "api",
		Relevance: 0.85,
	},
	{
		Title:     "Troubleshooting Common Issues",
		Content:   "Solutions for common issues including authentication failures, skill execution errors, and integration problems.",
		URL:       docsBaseURL + "troubleshooting",
		Category:  "troubleshooting",
		Relevance: 0.82,
	},
	{
		Title:     "Integration with Salesforce",
		Content:   "Step-by-step guide for integrating WatsonX Orchestrate with Salesforce, enabling CRM automation and data synchronization.",
		URL:       docsBaseURL + "integrations/salesforce",
		Category:  "admin",
		Relevance: 0.78,
	},
	{
		Title:     "Security Best Practices",
		Content:   "Security recommendations for WatsonX Orchestrate deployments, including authentication, access control, and data protection.",
		URL:       docsBaseURL + "security",
		Category:  "admin",
		Relevance: 0.75,
	},
	{
		Title:     "Workflow Automation Patterns",
		Content:   "Common workflow patterns and best practices for building efficient automations in WatsonX Orchestrate.",
		URL:       docsBaseURL + "workflows",
		Category:  "user",
		Relevance: 0.72,
	},
}

// BuiltinDocs 返回内置文档语料的副本
func BuiltinDocs() []Doc {
	return append([]Doc(nil), builtinDocs...)
}

// MemoryDocSource 在内存切片上检索
type MemoryDocSource []Doc

func (m MemoryDocSource) SearchDocs(_ context.Context, q DocQuery) ([]Doc, error) {
	var out []Doc
	for _, d := range m {
		if q.Category != "" && d.Category != q.Category {
			continue
		}
		if !MatchText(q.Query, d.Title, d.Content) {
			continue
		}
		out = append(out, d)
	}
	sortDocs(out)
	return limitDocs(out, q.Limit), nil
}

// MatchText 判断整句查询或其中任一单词是否出现在任一字段中（忽略大小写）。
// 空查询匹配所有内容。
func MatchText(query string, fields ...string) bool {
	q := strings.ToLower(query)
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
		if strings.Contains(lowered[i], q) {
			return true
		}
	}
	for _, w := range strings.Fields(q) {
		for _, f := range lowered {
			if strings.Contains(f, w) {
				return true
			}
		}
	}
	return false
}

func sortDocs(docs []Doc) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Relevance > docs[j].Relevance })
}

func limitDocs(docs []Doc, limit int) []Doc {
	if limit <= 0 {
		limit = defaultDocsLimit
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// DocStore 是 storage.Storage 中文档表的检索接口
type DocStore interface {
	SearchDocs(ctx context.Context, q storage.DocQuery) ([]storage.WxoDoc, error)
}

// StoreDocSource 把数据库文档表适配为 DocSource
type StoreDocSource struct {
	Store DocStore
}

func (s StoreDocSource) SearchDocs(ctx context.Context, q DocQuery) ([]Doc, error) {
	rows, err := s.Store.SearchDocs(ctx, storage.DocQuery{
		Query:    q.Query,
		Category: q.Category,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Doc, 0, len(rows))
	for _, r := range rows {
		out = append(out, Doc{
			Title:     r.Title,
			Content:   r.Content,
			URL:       r.URL,
			Category:  r.Category,
			Relevance: r.Relevance,
		})
	}
	return out, nil
}

// SearchDocsTool 检索 WatsonX Orchestrate 文档
type SearchDocsTool struct {
	Source DocSource
}

func NewSearchDocsTool(src DocSource) *SearchDocsTool {
	if src == nil {
		src = MemoryDocSource(builtinDocs)
	}
	return &SearchDocsTool{Source: src}
}

func (t *SearchDocsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: SearchDocsName,
		Desc: "Search IBM WatsonX Orchestrate documentation for relevant information. Use this to find setup guides, feature documentation, API references, and troubleshooting information.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Search query for documentation",
				Type:     schema.String,
				Required: true,
			},
			"limit": {
				Desc:     "Maximum number of results to return (default: 5)",
				Type:     schema.Integer,
				Required: false,
			},
			"category": {
				Desc:     "Optional category filter (e.g., 'admin', 'user', 'api', 'troubleshooting')",
				Type:     schema.String,
				Required: false,
			},
		}),
	}, nil
}

func (t *SearchDocsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query    string `json:"query"`
		Limit    int    `json:"limit"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	docs, err := t.Source.SearchDocs(ctx, DocQuery{Query: args.Query, Category: args.Category, Limit: args.Limit})
	if err != nil {
		return "", fmt.Errorf("search docs: %w", err)
	}
	if docs == nil {
		docs = []Doc{}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
