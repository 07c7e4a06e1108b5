package taxonomy

// synonymGroups lists category names that count as identical even though
// their surface forms differ. Comparison is exact within a group.
var synonymGroups = [][]string{
	{"语言", "语言学", "语言学习"},
	{"股市", "股票市场", "证券市场", "股票交易"},
	{"旅行经历", "旅行经验", "旅游体验"},
	{"独自游与团队游", "团队游与独自游", "独自旅行"},
	{"技术创新", "创新技术", "科技创新"},
	{"社交", "社会交往"},
	{"家庭活动", "家庭事件"},
	{"驾驶规则", "驾驶指令", "驾驶知识"},
	{"驾照", "驾驶执照"},
	{"公司分析", "企业分析"},
	{"通用", "一般", "常规"},
}

var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() map[string]int {
	idx := make(map[string]int)
	for group, names := range synonymGroups {
		for _, name := range names {
			idx[name] = group
		}
	}
	return idx
}

func sameSynonymGroup(a, b string) bool {
	ga, ok := synonymIndex[a]
	if !ok {
		return false
	}
	gb, ok := synonymIndex[b]
	return ok && ga == gb
}

// NameSimilarity scores two category names in [0, 1]. Exact matches and
// synonym-group members score 1, anything else falls back to the sequence
// ratio over runes.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if sameSynonymGroup(a, b) {
		return 1
	}
	return ratio([]rune(a), []rune(b))
}

// PathSimilarity compares two category paths level by level. Paths whose
// lengths differ by more than one level never match; a path made entirely of
// synonym levels matches outright.
func PathSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	diff := len(a) - len(b)
	if diff < -1 || diff > 1 {
		return 0
	}

	levels := len(a)
	if len(b) > levels {
		levels = len(b)
	}
	allSynonym := true
	var sum float64
	for i := 0; i < levels; i++ {
		if i >= len(a) || i >= len(b) {
			allSynonym = false
			continue
		}
		s := NameSimilarity(a[i], b[i])
		sum += s
		if s < 1 {
			allSynonym = false
		}
	}
	if allSynonym {
		return 1
	}
	return sum / float64(levels)
}

// ratio is the Ratcliff/Obershelp measure: twice the matched rune count over
// the total length. Matches are found by recursive longest common substring.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(a, b)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	m := size
	m += matchingRunes(a[:ai], b[:bi])
	m += matchingRunes(a[ai+size:], b[bi+size:])
	return m
}

func longestCommonSubstring(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	// lengths[j] holds the run length ending at a[i], b[j-1] from the
	// previous row.
	lengths := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := len(b); j > 0; j-- {
			if a[i] == b[j-1] {
				lengths[j] = lengths[j-1] + 1
				if lengths[j] > size {
					size = lengths[j]
					ai = i - size + 1
					bi = j - size
				}
			} else {
				lengths[j] = 0
			}
		}
	}
	return ai, bi, size
}
