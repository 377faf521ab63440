// Package catalog holds the fixed starter questions shown on an empty chat.
package catalog

// Suggestion is a starter question; Description is the text that gets sent.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

var suggestions = [...]Suggestion{
	{Title: "三花猫的基因秘密", Description: "为什么三花猫绝大多数是女孩子？", Icon: "🧬"},
	{Title: "曼赤肯猫的外形", Description: "短腿猫咪的骨骼结构健康吗？", Icon: "🐾"},
	{Title: "猫咪呼噜声", Description: "猫咪为什么会发出呼噜呼噜的声音？", Icon: "💤"},
	{Title: "布偶猫的特征", Description: "为什么布偶猫被称为'仙女猫'？", Icon: "🎀"},
}

// Suggestions returns the catalog in display order. Callers may modify the result.
func Suggestions() []Suggestion {
	out := make([]Suggestion, len(suggestions))
	copy(out, suggestions[:])
	return out
}

// Lookup returns the suggestion at index i.
func Lookup(i int) (Suggestion, bool) {
	if i < 0 || i >= len(suggestions) {
		return Suggestion{}, false
	}
	return suggestions[i], true
}

func Len() int { return len(suggestions) }
