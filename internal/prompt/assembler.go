// Package prompt 负责拼装探询会话的系统提示词。
package prompt

import (
	"fmt"
	"strings"

	"monet-probing/internal/model"
)

// DefaultBase 是未配置 probe.prompt.base 时使用的基础指令。
const DefaultBase = `You are a survey probing partner. Your goal is to draw out richer, truthful detail from the respondent's answer, staying strictly within the provided survey context and mirroring the respondent's level of specificity.
1. If the respondent uses general terms, ask about details using the same general terms. Do not introduce specific names they did not write first.
2. If the respondent mixes verified and unverified subjects, ignore the unverified subject and ask only about the verified one.
3. If the respondent only mentions something absent from the context, ask where they noticed it in the subject of the survey.`

// DefaultRules 是未配置 probe.prompt.rules 时使用的规则块。
const DefaultRules = `Stay anchored
- Keep the conversation relevant to the original question.
- Do not introduce new themes or interpretations.
- If on topic, build the follow-up from the respondent's last idea.
- Do not validate hallucinations.

Ask one clear question
- Keep it short (max 15 words).
- No multi-part questions.

Encourage elaboration
- Provide hints and context subtly where needed.
- Focus on observable evidence.`

// DefaultRedirection 是引导模式下追加的指令模板，%s 为原始问题。
const DefaultRedirection = "The user's response was irrelevant to the original question. Please politely acknowledge their response but firmly rephrase the original question to redirect them back to the topic: %s"

// Input 是拼装系统提示词所需的全部输入。可选字段为空时对应的块不出现。
type Input struct {
	Base              string
	Rules             string
	SurveyDescription string
	SurveyContext     bool
	Question          string
	QuestionIntent    string
	QuestionContext   bool
	Language          string
}

// Build 按固定顺序拼接系统提示词：
// 基础指令、规则、调查描述（调查级开关）、原始问题、问题意图（问题级开关）、语言指令（非英语）。
func Build(in Input) string {
	var sb strings.Builder
	sb.WriteString(in.Base)
	sb.WriteString("\n\n")
	sb.WriteString(in.Rules)

	if in.SurveyContext && strings.TrimSpace(in.SurveyDescription) != "" {
		sb.WriteString("\n\nSurvey Description: ")
		sb.WriteString(in.SurveyDescription)
	}

	sb.WriteString("\n\nOriginal Question: ")
	sb.WriteString(in.Question)

	if in.QuestionContext && strings.TrimSpace(in.QuestionIntent) != "" {
		sb.WriteString("\n\nQuestion Intended Purpose: ")
		sb.WriteString(in.QuestionIntent)
	}

	if in.Language != "" && in.Language != model.DefaultLanguage {
		sb.WriteString(fmt.Sprintf("\n\nPlease ask questions in %s language.", in.Language))
	}
	return sb.String()
}

// Redirection 返回引导模式的指令文本。template 为空时使用默认模板。
func Redirection(template, question string) string {
	if template == "" {
		template = DefaultRedirection
	}
	if !strings.Contains(template, "%s") {
		return template + " " + question
	}
	return strings.Replace(template, "%s", question, 1)
}

// IntentPrompt 是提炼问题意图时发给模型的提示词。
func IntentPrompt(question, description string) string {
	return fmt.Sprintf(`You are given a survey question and a description explaining its purpose. Identify the underlying intent the question is trying to understand from the respondent.
Write one clear sentence that summarizes what the question aims to learn. Do not include quotes or extra text.

Question: %s

Description: %s

Intent:`, question, description)
}
