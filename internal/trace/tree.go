package trace

import "sort"

// FlatSpan is a span paired with its nesting level for indentation-based rendering
type FlatSpan struct {
	*Span
	Level int
}

// BuildTree builds a hierarchical tree from a flat span list.
//
// A span is a root when it has no parent or when its declared parent is missing from
// the set. The second case covers both spans parented to the trace id itself and
// orphans, which must still render. Parent loops are cut so every span stays
// reachable from a root.
func BuildTree(spans []*Span) []*Span {
	byID := make(map[string]*Span, len(spans))
	ordered := make([]*Span, 0, len(spans))
	for _, s := range spans {
		if s == nil || s.ID == "" {
			continue
		}
		if _, dup := byID[s.ID]; dup {
			continue
		}
		s.Children = nil
		byID[s.ID] = s
		ordered = append(ordered, s)
	}

	parentOf := make(map[string]string, len(ordered))
	for _, s := range ordered {
		pid := s.ParentID
		if pid == "" || pid == s.ID {
			continue
		}
		if _, ok := byID[pid]; !ok {
			continue
		}
		parentOf[s.ID] = pid
	}
	breakCycles(ordered, parentOf)

	var roots []*Span
	for _, s := range ordered {
		pid, ok := parentOf[s.ID]
		if !ok {
			roots = append(roots, s)
			continue
		}
		parent := byID[pid]
		parent.Children = append(parent.Children, s)
	}

	sortByStart(roots)
	for _, root := range roots {
		setDepths(root, 0)
	}
	return roots
}

// breakCycles removes the parent link of the first span found on each parent loop
func breakCycles(ordered []*Span, parentOf map[string]string) {
	for _, s := range ordered {
		seen := map[string]bool{s.ID: true}
		cur := s.ID
		for {
			pid, ok := parentOf[cur]
			if !ok {
				break
			}
			if pid == s.ID {
				delete(parentOf, s.ID)
				break
			}
			if seen[pid] {
				// loop above us; it is cut when its own member is visited
				break
			}
			seen[pid] = true
			cur = pid
		}
	}
}

// setDepths recursively sets depths and orders children by start time
func setDepths(s *Span, depth int) {
	s.Depth = depth
	sortByStart(s.Children)
	for _, child := range s.Children {
		setDepths(child, depth+1)
	}
}

func sortByStart(spans []*Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].StartTime != spans[j].StartTime {
			return spans[i].StartTime < spans[j].StartTime
		}
		return spans[i].ID < spans[j].ID
	})
}

// Flatten returns the pre-order projection of the tree
func Flatten(roots []*Span) []FlatSpan {
	var result []FlatSpan
	for _, root := range roots {
		flattenSpan(root, 0, &result)
	}
	return result
}

func flattenSpan(s *Span, level int, result *[]FlatSpan) {
	*result = append(*result, FlatSpan{Span: s, Level: level})
	for _, child := range s.Children {
		flattenSpan(child, level+1, result)
	}
}

// Walk visits every span in pre-order
func Walk(roots []*Span, fn func(*Span)) {
	for _, root := range roots {
		walk(root, fn)
	}
}

func walk(s *Span, fn func(*Span)) {
	fn(s)
	for _, child := range s.Children {
		walk(child, fn)
	}
}
