// Package prompt renders the fixed instruction template sent to the model
// for each poem.
package prompt

import (
	"fmt"
	"strings"

	"poem-annotator/internal/poem"
)

// Section markers the model is asked to emit, in output order.
const (
	MarkerTranslation  = "【白话翻译】"
	MarkerBackground   = "【创作背景】"
	MarkerAppreciation = "【赏析解读】"

	// SectionOpen starts every marker.
	SectionOpen = "【"
)

var requirements = []string{
	"白话翻译要准确传达原诗意境，语言流畅自然",
	"创作背景要结合诗人经历和历史背景",
	"赏析解读要从艺术手法、思想情感等角度深入分析",
	"用中文回答，结构清晰",
}

// Build renders the annotation prompt for r.
func Build(r poem.Record) string {
	var sb strings.Builder
	sb.WriteString("你是一位古典诗词研究专家，请为以下古诗提供详细的白话翻译、创作背景和赏析解读。\n\n")

	sb.WriteString("要求：\n")
	for i, req := range requirements {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, req))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("诗名：《%s》\n", r.Title))
	sb.WriteString(fmt.Sprintf("作者：%s\n", r.Author))
	sb.WriteString(fmt.Sprintf("朝代：%s\n", r.Dynasty))
	sb.WriteString(fmt.Sprintf("内容：%s\n\n", r.Content))

	sb.WriteString("请按照以下格式输出：\n")
	sb.WriteString(MarkerTranslation + "\n[你的翻译内容]\n\n")
	sb.WriteString(MarkerBackground + "\n[创作背景说明]\n\n")
	sb.WriteString(MarkerAppreciation + "\n[赏析内容]")
	return sb.String()
}
