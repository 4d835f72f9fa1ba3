package segment

import (
	"sort"
	"unicode/utf8"
)

// SpanRef 片段内的格式区间引用，偏移相对于片段起点
type SpanRef struct {
	Object any
	Start  int
	End    int
	Flags  Flags

	origin int
}

// Segment 原文中一段连续文本及与之相交的格式区间
type Segment struct {
	Start int
	End   int
	Text  string
	Spans []SpanRef

	translated *string
}

// SetTranslation 写入译文
func (s *Segment) SetTranslation(text string) {
	s.translated = &text
}

// Translation 返回译文以及是否已翻译
func (s *Segment) Translation() (string, bool) {
	if s.translated == nil {
		return "", false
	}
	return *s.translated, true
}

// Output 有译文时返回译文，否则返回原文
func (s *Segment) Output() string {
	if s.translated != nil {
		return *s.translated
	}
	return s.Text
}

// ParseAllSegments 以所有格式区间的端点为边界切分文本。
// 片段按升序排列、首尾相接、恰好覆盖全文；空文本返回空列表。
func ParseAllSegments(text *Spanned) []*Segment {
	length := text.Len()
	if length == 0 {
		return nil
	}
	spans := text.Spans()

	bounds := make([]int, 0, len(spans)*2+2)
	bounds = append(bounds, 0, length)
	for _, sp := range spans {
		bounds = append(bounds, clamp(sp.Start, 0, length), clamp(sp.End, 0, length))
	}
	sort.Ints(bounds)
	bounds = dedupSorted(bounds)

	segments := make([]*Segment, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		if start >= end {
			continue
		}
		seg := &Segment{Start: start, End: end, Text: text.Slice(start, end)}
		for idx, sp := range spans {
			lo, hi := max(sp.Start, start), min(sp.End, end)
			if lo >= hi {
				continue
			}
			seg.Spans = append(seg.Spans, SpanRef{
				Object: sp.Object,
				Start:  lo - start,
				End:    hi - start,
				Flags:  sp.Flags,
				origin: idx + 1,
			})
		}
		segments = append(segments, seg)
	}
	return segments
}

// BuildSpannedFromSegments 按顺序拼接片段输出并重新挂载格式区间。
// 区间被截断到片段实际输出长度内，截断后为空的区间会被丢弃；
// 同一原始区间在相邻片段中的部分会重新合并为一个区间。
func BuildSpannedFromSegments(segments []*Segment) *Spanned {
	var (
		buf    []byte
		offset int
		spans  []Span
		origin []int
	)
	for _, seg := range segments {
		out := seg.Output()
		n := utf8.RuneCountInString(out)
		for _, ref := range seg.Spans {
			lo := offset + clamp(ref.Start, 0, n)
			hi := offset + clamp(ref.End, 0, n)
			if lo >= hi {
				continue
			}
			if k := lastPiece(origin, ref.origin); k >= 0 && spans[k].End == lo {
				spans[k].End = hi
				continue
			}
			spans = append(spans, Span{Object: ref.Object, Start: lo, End: hi, Flags: ref.Flags})
			origin = append(origin, ref.origin)
		}
		buf = append(buf, out...)
		offset += n
	}

	result := Plain(string(buf))
	result.spans = spans
	return result
}

func lastPiece(origin []int, id int) int {
	if id == 0 {
		return -1
	}
	for i := len(origin) - 1; i >= 0; i-- {
		if origin[i] == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dedupSorted(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
