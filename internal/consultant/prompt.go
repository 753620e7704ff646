package consultant

import (
	"strings"

	"wet-coach-go/internal/model"
)

const systemPrompt = `You are a supportive WET consultant for therapist training. Provide balanced, constructive feedback based on research findings.

STRUCTURE YOUR RESPONSE AS JSON:
{
  "title": "Brief, actionable title (max 3 words). Meaningful and concise.",
  "summary": "One sentence summary of the main point, if needed. If no summary is needed, leave this blank. Concise and no more than 10 words",
  "details": "Detailed explanation with specific guidance, if needed. If no details are needed, leave this blank. Bold the most important parts. Use markdown formatting for emphasis. Prefer bullet points over paragraphs. Prefer concise and no more than 50 words",
  "priority": "green|yellow|red"
}

PRIORITY LEVELS:
- GREEN: Positive feedback, encouragement, doing great, no details needed.
- YELLOW: Pause and reflect, minor adjustment needed
- RED: Warning, important issue that needs attention

FOCUS ON:
- WET-specific techniques (exposure therapy, trauma narrative, treatment rationale)
- Cultural responsiveness in WET delivery
- Next most-important WET skill to implement
- Specific, actionable guidance
- Acknowledging what the therapist is doing well

AVOID:
- Overly critical or negative feedback
- Multiple directions at once
- Overly formal or verbose language
- Excessive praise or ingratiating comments
- Basic therapeutic techniques (unless clearly inappropriate)
- Guidance that contradicts WET principles

BALANCE:
- Provide constructive guidance while acknowledging progress
- Focus on next steps rather than dwelling on what went wrong
- Give clear direction on whether to address feedback immediately or move forward
- Ensure feedback aligns with WET approach and principles

Analyze the FULL conversation context and provide supportive WET guidance.
Weigh the MOST RECENT EXCHANGE most heavily; earlier turns are context.`

// Entry 是发送给督导模型的一条对话记录。
type Entry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func speaker(role string) string {
	if role == model.RoleTherapist {
		return "Therapist"
	}
	return "Patient"
}

// recentStart 返回"最近一轮交流"在 transcript 中的起始下标：
// 末尾是 治疗师→病人 时取最后两条，否则只取最后一条。
func recentStart(transcript []Entry) int {
	n := len(transcript)
	switch {
	case n == 0:
		return 0
	case n >= 2 && transcript[n-1].Role == model.RolePatient && transcript[n-2].Role == model.RoleTherapist:
		return n - 2
	default:
		return n - 1
	}
}

// FormatTranscript 按顺序序列化完整对话，并单独标出最近一轮交流。
func FormatTranscript(transcript []Entry) string {
	if len(transcript) == 0 {
		return "(no conversation yet)"
	}
	start := recentStart(transcript)

	var b strings.Builder
	if start > 0 {
		b.WriteString("Earlier conversation:\n\n")
		writeEntries(&b, transcript[:start])
		b.WriteString("\n\n")
	}
	b.WriteString("Most recent exchange (evaluate this first):\n\n")
	writeEntries(&b, transcript[start:])
	return b.String()
}

func writeEntries(b *strings.Builder, entries []Entry) {
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(speaker(e.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Text))
	}
}

func userPrompt(transcript []Entry) string {
	return "Full conversation context:\n\n" + FormatTranscript(transcript) +
		"\n\nProvide WET consultant feedback based on this entire conversation. Respond with valid JSON only."
}
