package ner

import "errors"

// AhoMatcher finds every occurrence of a fixed set of patterns in one pass.
// Matching is ASCII case-insensitive.
type AhoMatcher struct {
	nodes []ahoNode
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []int // pattern lengths ending at this node
}

func NewAhoMatcher(patterns []string) (*AhoMatcher, error) {
	if len(patterns) == 0 {
		return nil, errors.New("patterns are required")
	}

	nodes := []ahoNode{{next: map[byte]int{}}}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		current := 0
		for i := 0; i < len(pattern); i++ {
			b := lowerASCII(pattern[i])
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, ahoNode{next: map[byte]int{}})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}
		if !containsInt(nodes[current].out, len(pattern)) {
			nodes[current].out = append(nodes[current].out, len(pattern))
		}
	}

	if len(nodes) == 1 {
		return nil, errors.New("no non-empty patterns")
	}

	queue := make([]int, 0, len(nodes))
	for _, next := range nodes[0].next {
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for fail != 0 {
				if _, ok := nodes[fail].next[b]; ok {
					break
				}
				fail = nodes[fail].fail
			}
			if target, ok := nodes[fail].next[b]; ok && target != next {
				nodes[next].fail = target
			}
			nodes[next].out = append(nodes[next].out, nodes[nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	return &AhoMatcher{nodes: nodes}, nil
}

// FindAll returns the [start, end) byte range of every match, including
// overlapping ones, ordered by end offset.
func (m *AhoMatcher) FindAll(input string) [][2]int {
	var matches [][2]int
	state := 0
	for i := 0; i < len(input); i++ {
		b := lowerASCII(input[i])
		for state != 0 {
			if _, ok := m.nodes[state].next[b]; ok {
				break
			}
			state = m.nodes[state].fail
		}
		if next, ok := m.nodes[state].next[b]; ok {
			state = next
		}
		for _, n := range m.nodes[state].out {
			matches = append(matches, [2]int{i + 1 - n, i + 1})
		}
	}
	return matches
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
