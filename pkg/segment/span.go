// Package segment 把带格式的文本拆分为可独立翻译的片段，并在翻译后重新组装、挂回原有格式区间。
//
// 所有偏移量均以 rune 为单位，区间为左闭右开 [Start, End)。
package segment

import (
	"errors"
	"fmt"
	"sort"
)

// Flags 描述格式区间在周围文本变化时边界的移动方式。
// 本包只记录并原样回填，不解释其含义。
type Flags uint32

// 常用标志位，取值与宿主 UI 框架保持一致
const (
	InclusiveExclusive Flags = 0x11
	InclusiveInclusive Flags = 0x12
	ExclusiveExclusive Flags = 0x21
	ExclusiveInclusive Flags = 0x22
)

// ErrInvalidRange 区间越界或反转
var ErrInvalidRange = errors.New("invalid span range")

// Span 格式区间。Object 是宿主的格式化对象，按引用保存，重建时原样挂回。
type Span struct {
	Object any
	Start  int
	End    int
	Flags  Flags
}

// Spanned 带格式区间的文本
type Spanned struct {
	text     string
	runes    []rune
	spans    []Span
	editable bool
}

// NewSpanned 创建带格式文本，越界或反转的区间会返回错误
func NewSpanned(text string, spans ...Span) (*Spanned, error) {
	s := Plain(text)
	for _, sp := range spans {
		if err := s.SetSpan(sp.Object, sp.Start, sp.End, sp.Flags); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Plain 创建不带格式的文本
func Plain(text string) *Spanned {
	return &Spanned{text: text, runes: []rune(text)}
}

// Editable 创建标记为用户可编辑的文本，编排器会原样放行这类文本
func Editable(text string, spans ...Span) (*Spanned, error) {
	s, err := NewSpanned(text, spans...)
	if err != nil {
		return nil, err
	}
	s.editable = true
	return s, nil
}

// SetSpan 在 [start, end) 上挂载格式对象
func (s *Spanned) SetSpan(obj any, start, end int, flags Flags) error {
	if start < 0 || end > len(s.runes) || start > end {
		return fmt.Errorf("%w: [%d,%d) in text of length %d", ErrInvalidRange, start, end, len(s.runes))
	}
	s.spans = append(s.spans, Span{Object: obj, Start: start, End: end, Flags: flags})
	return nil
}

// String 返回纯文本
func (s *Spanned) String() string {
	if s == nil {
		return ""
	}
	return s.text
}

// Len 返回以 rune 计的长度
func (s *Spanned) Len() int {
	if s == nil {
		return 0
	}
	return len(s.runes)
}

// IsEditable 是否为用户可编辑内容
func (s *Spanned) IsEditable() bool {
	return s != nil && s.editable
}

// Spans 返回按起点排序的格式区间副本
func (s *Spanned) Spans() []Span {
	if s == nil {
		return nil
	}
	out := make([]Span, len(s.spans))
	copy(out, s.spans)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Slice 返回 [start, end) 范围内的纯文本
func (s *Spanned) Slice(start, end int) string {
	return string(s.runes[start:end])
}
