package classify

import (
	"bytes"
	"fmt"
)

const (
	maxContentRunes = 2000
	maxSummaryRunes = 50
)

func buildPrompt(language, title, content, treeContext string, maxLevels int) string {
	if language == "en" {
		return buildPromptEN(title, content, treeContext, maxLevels)
	}
	return buildPromptZH(title, content, treeContext, maxLevels)
}

func buildPromptZH(title, content, treeContext string, maxLevels int) string {
	if treeContext == "" {
		treeContext = fmt.Sprintf("当前无分类体系，请自由创建合适的分类（最多%d层）", maxLevels)
	}

	var buf bytes.Buffer
	buf.WriteString("你是一个专业的文档分类助手。请分析以下文章内容，返回 JSON 格式的分类结果。\n\n")
	fmt.Fprintf(&buf, "**当前分类体系：**\n%s\n\n", treeContext)
	fmt.Fprintf(&buf, "**文章信息：**\n标题: %s\n内容预览: %s\n\n", title, content)
	buf.WriteString("**要求：**\n")
	fmt.Fprintf(&buf, "1. 优先匹配现有分类，返回最合适的类别路径（最多%d层，例如 [\"技术\", \"编程语言\", \"Python\"]）\n", maxLevels)
	buf.WriteString("2. 提取 3-5 个关键词\n")
	fmt.Fprintf(&buf, "3. 生成 %d 字内的摘要\n", maxSummaryRunes)
	buf.WriteString("4. 评估分类置信度 (0-1)，置信度应该真实反映匹配程度\n\n")
	buf.WriteString("**返回格式（必须是有效的 JSON）：**\n")
	buf.WriteString(`{
  "category_path": ["一级类别", "二级类别", "三级标签"],
  "summary": "文章摘要（50字内）",
  "keywords": ["关键词1", "关键词2", "关键词3"],
  "confidence": 0.85
}`)
	buf.WriteString("\n\n**注意：只返回 JSON，不要包含任何其他文字说明。**\n")
	return buf.String()
}

func buildPromptEN(title, content, treeContext string, maxLevels int) string {
	if treeContext == "" {
		treeContext = fmt.Sprintf("No categories yet; create suitable ones freely (at most %d levels).", maxLevels)
	}

	var buf bytes.Buffer
	buf.WriteString("You are a document classification assistant. Analyze the article below and answer with a JSON classification.\n\n")
	fmt.Fprintf(&buf, "Existing categories:\n%s\n\n", treeContext)
	fmt.Fprintf(&buf, "Article:\nTitle: %s\nContent preview: %s\n\n", title, content)
	buf.WriteString("Requirements:\n")
	fmt.Fprintf(&buf, "1. Prefer existing categories; return the best path (at most %d levels, e.g. [\"Technology\", \"Programming\", \"Go\"]).\n", maxLevels)
	buf.WriteString("2. Extract 3-5 keywords.\n")
	fmt.Fprintf(&buf, "3. Write a summary of at most %d characters.\n", maxSummaryRunes)
	buf.WriteString("4. Report a confidence in [0,1] that honestly reflects the match.\n\n")
	buf.WriteString("Answer format (must be valid JSON):\n")
	buf.WriteString(`{
  "category_path": ["Level 1", "Level 2", "Level 3"],
  "summary": "short summary",
  "keywords": ["keyword1", "keyword2", "keyword3"],
  "confidence": 0.85
}`)
	buf.WriteString("\n\nReturn ONLY the JSON object, no other text.\n")
	return buf.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
