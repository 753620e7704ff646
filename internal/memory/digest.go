// Package memory 生成滚动的单轮记忆摘要。
package memory

import "fmt"

// MaxExcerpt 是摘要中每段发言保留的最大字符数。
const MaxExcerpt = 120

const ellipsis = "…"

// Digest 只概括最近一次治疗师/病人的交流，不做累积。
type Digest string

// Compute 截断双方发言并填入固定模板。纯函数，相同输入总是得到相同输出。
func Compute(therapistText, patientText string) Digest {
	return Digest(fmt.Sprintf("Last turn → therapist: \"%s\"; patient: \"%s\"",
		truncate(therapistText, MaxExcerpt), truncate(patientText, MaxExcerpt)))
}

func (d Digest) String() string {
	return string(d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}
