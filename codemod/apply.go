package codemod

// RuleChange counts the substitutions one rule made in one file.
type RuleChange struct {
	Rule  string   `json:"rule"`
	Kind  RuleKind `json:"kind"`
	Count int      `json:"count"`
}

// ApplyContent runs every rule of the set over content, in declared order.
// It does no I/O and is the routine the engine uses for each file.
func ApplyContent(content string, rs *RuleSet) (string, []RuleChange) {
	var changes []RuleChange
	for _, rule := range rs.Rules {
		var n int
		content, n = rule.Apply(content)
		if n > 0 {
			changes = append(changes, RuleChange{Rule: rule.Spec.Name, Kind: rule.Spec.Kind, Count: n})
		}
	}
	return content, changes
}

// TotalChanges sums the substitutions of a change list.
func TotalChanges(changes []RuleChange) int {
	total := 0
	for _, c := range changes {
		total += c.Count
	}
	return total
}
