package ner

import (
	"math"
	"sort"
	"strings"
)

// argmaxLabels picks the highest-scoring label for every token. logits is the
// flattened [seqLen, numLabels] output of a token classification model.
func argmaxLabels(logits []float32, numLabels int, labels []string, tokens int) []string {
	out := make([]string, tokens)
	if numLabels <= 0 {
		return out
	}
	for i := 0; i < tokens; i++ {
		base := i * numLabels
		if base >= len(logits) {
			break
		}
		best := 0
		bestScore := float32(-math.MaxFloat32)
		for j := 0; j < numLabels && base+j < len(logits); j++ {
			if logits[base+j] > bestScore {
				best = j
				bestScore = logits[base+j]
			}
		}
		if best < len(labels) {
			out[i] = labels[best]
		}
	}
	return out
}

// spansFromTokenLabels merges BIO-tagged tokens into spans. A B- tag or a
// change of entity type starts a new span; I- extends the current one.
func spansFromTokenLabels(labels []string, offsets []tokenOffset) []Span {
	var spans []Span
	var cur *Span

	for i, lbl := range labels {
		if i >= len(offsets) {
			break
		}
		offset := offsets[i]
		if offset.Start < 0 || offset.End <= offset.Start {
			continue
		}
		prefix, typ := splitLabel(lbl)
		if typ == "" || strings.EqualFold(lbl, "O") {
			if cur != nil {
				spans = append(spans, *cur)
				cur = nil
			}
			continue
		}
		if prefix == "B" || cur == nil || !strings.EqualFold(cur.Label, typ) {
			if cur != nil {
				spans = append(spans, *cur)
			}
			cur = &Span{Label: typ, Start: offset.Start, End: offset.End}
			continue
		}
		if offset.End > cur.End {
			cur.End = offset.End
		}
	}
	if cur != nil {
		spans = append(spans, *cur)
	}
	return mergeSpans(spans)
}

func splitLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return strings.ToUpper(parts[0]), parts[1]
}

func mergeSpans(in []Span) []Span {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})
	out := make([]Span, 0, len(in))
	cur := in[0]
	for _, s := range in[1:] {
		if s.Start <= cur.End && strings.EqualFold(s.Label, cur.Label) {
			if s.End > cur.End {
				cur.End = s.End
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	return append(out, cur)
}

// personSpans keeps spans carrying the person label, e.g. "PER" or "PERSON"
func personSpans(spans []Span, label string) []Span {
	out := spans[:0:0]
	for _, s := range spans {
		if strings.EqualFold(s.Label, label) {
			out = append(out, s)
		}
	}
	return out
}
