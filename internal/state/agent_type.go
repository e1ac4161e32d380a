package state

import (
	"fmt"
	"strings"
)

// AgentType 选择一次会话使用的编排图与系统提示词。
// 取值即持久化时的字符串形式。
type AgentType string

const (
	AdminSetup     AgentType = "admin_setup"
	UsageAssistant AgentType = "usage_assistant"
	Troubleshoot   AgentType = "troubleshoot"
	BestPractices  AgentType = "best_practices"
	DocsHelper     AgentType = "docs_helper"
)

// DefaultAgentType 在未指定 agent 时使用。
const DefaultAgentType = AdminSetup

var allAgentTypes = []AgentType{AdminSetup, UsageAssistant, Troubleshoot, BestPractices, DocsHelper}

// AllAgentTypes 返回全部 agent 类型（固定顺序）。
func AllAgentTypes() []AgentType {
	out := make([]AgentType, len(allAgentTypes))
	copy(out, allAgentTypes)
	return out
}

// ParseAgentType 解析命令行/请求中的 agent 名称，大小写不敏感，支持常见别名。
func ParseAgentType(s string) (AgentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin-setup", "admin_setup", "adminsetup":
		return AdminSetup, nil
	case "usage", "usage-assistant", "usage_assistant":
		return UsageAssistant, nil
	case "troubleshoot", "troubleshooting":
		return Troubleshoot, nil
	case "best-practices", "best_practices", "bestpractices":
		return BestPractices, nil
	case "docs", "docs-helper", "docs_helper", "documentation":
		return DocsHelper, nil
	}
	return "", fmt.Errorf("unknown agent type: %s", s)
}

// Valid 判断是否为已知类型。
func (a AgentType) Valid() bool {
	for _, t := range allAgentTypes {
		if a == t {
			return true
		}
	}
	return false
}

// OrDefault 对空值返回 DefaultAgentType。
func (a AgentType) OrDefault() AgentType {
	if a == "" {
		return DefaultAgentType
	}
	return a
}

func (a AgentType) String() string {
	return string(a)
}

func (a AgentType) DisplayName() string {
	switch a.OrDefault() {
	case AdminSetup:
		return "Admin Setup Guide"
	case UsageAssistant:
		return "Usage Assistant"
	case Troubleshoot:
		return "Troubleshooting Bot"
	case BestPractices:
		return "Best Practices Coach"
	case DocsHelper:
		return "Documentation Helper"
	}
	return string(a)
}

func (a AgentType) Description() string {
	switch a.OrDefault() {
	case AdminSetup:
		return "I help administrators set up and configure IBM WatsonX Orchestrate. " +
			"I can guide you through initial setup, user management, integrations, and security configuration."
	case UsageAssistant:
		return "I help you understand how to use WatsonX Orchestrate effectively. " +
			"Ask me about creating skills, building automations, or using the catalog."
	case Troubleshoot:
		return "I help diagnose and resolve issues with WatsonX Orchestrate. " +
			"Describe your problem and I'll help you find a solution."
	case BestPractices:
		return "I provide optimization tips and best practices for WatsonX Orchestrate. " +
			"I can help you design better workflows and improve performance."
	case DocsHelper:
		return "I help you navigate and understand WatsonX Orchestrate documentation. " +
			"Ask me about any feature and I'll find the relevant docs."
	}
	return ""
}

// SystemPrompt 返回写入新会话首条 system 消息的提示词。
// 注意：提示词中不要出现花括号，LLM 模式下会经过 FString 模板。
func (a AgentType) SystemPrompt() string {
	switch a.OrDefault() {
	case AdminSetup:
		return systemPromptAdminSetup
	case UsageAssistant:
		return systemPromptUsage
	case Troubleshoot:
		return systemPromptTroubleshoot
	case BestPractices:
		return systemPromptBestPractices
	case DocsHelper:
		return systemPromptDocs
	}
	return ""
}

const systemPromptAdminSetup = `You are the WXOrca Admin Setup Guide, an assistant for administrators of IBM WatsonX Orchestrate.
Help with initial environment setup, identity providers and SSO, users, teams and permissions,
integrations with external systems, API keys and security configuration.
Give numbered, concrete steps and point to the relevant Settings pages.
Use the search_wxo_docs tool for admin documentation and validate_wxo_config when a configuration is shared.`

const systemPromptUsage = `You are the WXOrca Usage Assistant for IBM WatsonX Orchestrate end users.
Explain how to create and use skills, build workflows, browse the skill catalog and talk to the AI assistant.
Prefer short explanations followed by an example. Use fetch_wxo_examples for code and search_wxo_docs for user guides.`

const systemPromptTroubleshoot = `You are the WXOrca Troubleshooting Bot for IBM WatsonX Orchestrate.
Classify the reported problem, state its likely causes and walk the user through checks from least to most invasive.
Ask for error messages, timing and recent changes when the report is vague.
Search the troubleshooting documentation before answering and offer escalation to IBM Support when needed.`

const systemPromptBestPractices = `You are the WXOrca Best Practices Coach for IBM WatsonX Orchestrate.
Give opinionated, actionable guidance on workflow design, skill design, performance, security,
collaboration, error handling and deployment. Group advice under short headings and back it with examples.`

const systemPromptDocs = `You are the WXOrca Documentation Helper for IBM WatsonX Orchestrate.
Work out which part of the documentation answers the question, link the most relevant pages with a one-line summary
and suggest a narrower category when the question is broad.`
