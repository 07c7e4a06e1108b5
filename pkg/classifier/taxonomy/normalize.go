// Package taxonomy maintains the category tree: name normalization,
// similarity detection, prompt context rendering and the level-by-level
// resolution of classification paths into stored nodes.
package taxonomy

import "strings"

const defaultFallback = "未分类"

type namePair struct {
	en string
	zh string
}

// nameEquivalents pairs cross-language category names. The first pair for a
// given name wins, so group canons go first.
var nameEquivalents = []namePair{
	{"technology", "技术"},
	{"tech", "技术"},
	{"programming", "编程"},
	{"coding", "编程"},
	{"development", "开发"},
	{"software", "软件"},
	{"artificial intelligence", "人工智能"},
	{"ai", "人工智能"},
	{"machine learning", "机器学习"},
	{"ml", "机器学习"},
	{"data science", "数据科学"},

	{"business", "商务"},
	{"commerce", "商务"},
	{"entrepreneurship", "创业"},
	{"startup", "创业"},
	{"management", "管理"},
	{"company analysis", "公司分析"},
	{"stock market", "股票市场"},

	{"education", "教育"},
	{"learning", "学习"},
	{"study", "学习"},
	{"teaching", "教学"},

	{"language learning", "语言学习"},
	{"language", "语言学习"},
	{"grammar", "语法"},
	{"vocabulary", "词汇"},
	{"german", "德语"},

	{"travel", "旅行"},
	{"trip", "旅行"},
	{"tourism", "旅游"},
	{"travel experience", "旅行经历"},
	{"solo travel", "独自旅行"},
	{"accommodation", "住宿"},

	{"finance", "金融"},
	{"financial", "金融"},
	{"investment", "投资"},
	{"investing", "投资"},
	{"money", "理财"},

	{"health", "健康"},
	{"wellness", "健康"},
	{"fitness", "健身"},
	{"medical", "医疗"},

	{"lifestyle", "生活"},
	{"life", "生活"},
	{"daily", "日常"},

	{"social", "社交"},
	{"entertainment", "娱乐"},
	{"fun", "娱乐"},
	{"hobby", "兴趣爱好"},

	{"unclassified", "未分类"},
	{"uncategorized", "未分类"},
	{"miscellaneous", "杂项"},
	{"misc", "杂项"},
	{"other", "其他"},
	{"general", "通用"},
}

var (
	enToZH = make(map[string]string, len(nameEquivalents))
	zhToEN = make(map[string]string, len(nameEquivalents))
)

func init() {
	for _, p := range nameEquivalents {
		if _, ok := enToZH[p.en]; !ok {
			enToZH[p.en] = p.zh
		}
		if _, ok := zhToEN[p.zh]; !ok {
			zhToEN[p.zh] = p.en
		}
	}
}

// Normalizer maps category names onto one canonical language before lookup,
// so Technology and 技术 land on the same node.
type Normalizer struct {
	// Language is zh (map English names to Chinese), en (the inverse) or
	// auto (pass names through untouched).
	Language string
	Fallback string
}

// Name normalizes a single category name. Blank names become the fallback.
func (n Normalizer) Name(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return n.fallback()
	}

	switch n.Language {
	case "en":
		if en, ok := zhToEN[trimmed]; ok {
			return titleEN(en)
		}
		// Collapse English synonyms onto the group canon via the Chinese key.
		if zh, ok := enToZH[strings.ToLower(trimmed)]; ok {
			if en, ok := zhToEN[zh]; ok {
				return titleEN(en)
			}
		}
	case "auto":
	default: // zh
		if zh, ok := enToZH[strings.ToLower(trimmed)]; ok {
			return zh
		}
	}
	return trimmed
}

// Path normalizes every segment and collapses consecutive duplicates, which
// appear when two source names map onto one canonical name.
func (n Normalizer) Path(path []string) []string {
	if len(path) == 0 {
		return []string{n.fallback()}
	}
	out := make([]string, 0, len(path))
	for _, seg := range path {
		name := n.Name(seg)
		if len(out) > 0 && out[len(out)-1] == name {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (n Normalizer) fallback() string {
	if n.Fallback != "" {
		return n.Fallback
	}
	return defaultFallback
}

// titleEN uppercases word starts; short words are treated as acronyms.
func titleEN(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) <= 2 {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
