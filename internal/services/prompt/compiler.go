package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

const (
	ModeTest     = "test"
	ModeLearning = "learning"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CodeContext is the learner's current editor contents.
type CodeContext struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

type Input struct {
	State            *learner.Summary `json:"user_state"`
	RetrievedContext []string         `json:"retrieved_context"`
	History          []Message        `json:"conversation_history"`
	UserMessage      string           `json:"user_message"`
	Code             *CodeContext     `json:"code_context,omitempty"`
	Mode             string           `json:"mode,omitempty"`
	ContentTitle     string           `json:"content_title,omitempty"`
	ContentJSON      string           `json:"content_json,omitempty"`
	TestResults      any              `json:"test_results,omitempty"`
}

type Output struct {
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
}

// Compiler renders learner state and conversation into model input. It holds
// no mutable state; one instance serves every request.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile is deterministic: equal inputs yield byte-identical output.
func (c *Compiler) Compile(in Input) Output {
	state := in.State
	if state == nil {
		state = learner.NewSummary("", time.Time{})
	}
	return Output{
		SystemPrompt: c.systemPrompt(state, in),
		Messages:     c.messages(in),
	}
}

func (c *Compiler) systemPrompt(state *learner.Summary, in Input) string {
	parts := []string{persona}

	if analysis := codingBehaviorAnalysis(state.BehaviorPatterns); analysis != "" {
		parts = append(parts, "CODING BEHAVIOR ANALYSIS:\n"+analysis)
	}

	parts = append(parts, "STRATEGY: "+EmotionStrategy(state.EmotionState.CurrentSentiment))
	parts = append(parts, studentInfo(state)...)
	parts = append(parts, referenceKnowledge(in.RetrievedContext))

	switch strings.ToLower(strings.TrimSpace(in.Mode)) {
	case ModeTest:
		parts = append(parts,
			"MODE: The student is in test mode. Guide them to find the answer themselves. Do not give the answer directly.",
			debugBlock(in.ContentTitle, state.QuestionCount(in.ContentTitle), in.Code, in.TestResults),
		)
	case ModeLearning:
		rec, _ := topicMastery(state, in.ContentTitle)
		parts = append(parts,
			"MODE: The student is in learning mode. Provide detailed explanations and examples to help them understand the concepts.",
			learningBlock(in.ContentTitle, rec.MasteryProb),
		)
	default:
		if title := strings.TrimSpace(in.ContentTitle); title != "" {
			parts = append(parts, fmt.Sprintf("TOPIC: The current topic is '%s'. Focus your explanations on this specific topic.", title))
		}
	}

	if strings.TrimSpace(in.ContentJSON) != "" {
		parts = append(parts, "CONTENT DATA: Here is the detailed content data for the current topic. Use this to provide more specific and accurate guidance.\n"+prettyContent(in.ContentJSON))
	}
	return strings.Join(parts, "\n\n")
}

func referenceKnowledge(ctx []string) string {
	var chunks []string
	for _, s := range ctx {
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}
	if len(chunks) == 0 {
		return "REFERENCE KNOWLEDGE: No relevant knowledge was retrieved from the knowledge base. Answer based on your general knowledge."
	}
	return "REFERENCE KNOWLEDGE: Use the following information from the knowledge base to answer the user's question accurately.\n\n" +
		strings.Join(chunks, "\n\n---\n\n")
}

// QuestionGuidance picks the hint explicitness for the number of times the
// learner has asked about the current problem.
func QuestionGuidance(questionCount int) string {
	switch {
	case questionCount < 3:
		return guidanceSocratic
	case questionCount < 6:
		return guidanceTargeted
	default:
		return guidanceExplicit
	}
}

func debugBlock(title string, questionCount int, code *CodeContext, testResults any) string {
	var b strings.Builder
	b.WriteString(debugPrinciples)
	b.WriteString("\n\n# Task\n")
	fmt.Fprintf(&b, "Now, the student is working on the %q task. They have encountered a problem, and this is their **%d** time asking about it.\n", titleOrUnknown(title), questionCount)
	b.WriteString("Guidance for this turn: " + QuestionGuidance(questionCount) + "\n\n")
	b.WriteString("**Student Code:**\n")
	if sections := codeSections(code); len(sections) > 0 {
		b.WriteString(strings.Join(sections, "\n\n"))
	} else {
		b.WriteString("(no code provided)")
	}
	b.WriteString("\n\n**Error Message:**\n```\n")
	b.WriteString(renderTestResults(testResults))
	b.WriteString("\n```\n\n")
	b.WriteString("Please generate the most appropriate response for the student based on your role as a tutor and the core principles above.")
	return b.String()
}

func learningBlock(title string, prob float64) string {
	tier := MasteryTier(prob)
	var b strings.Builder
	b.WriteString(learningPrinciples)
	b.WriteString("\n\n# Current Context\n")
	fmt.Fprintf(&b, "**Topic**: %s\n", titleOrUnknown(title))
	fmt.Fprintf(&b, "**Student's Current Mastery Level**: %s (probability: %.2f)\n", tier, prob)
	b.WriteString("**Learning Mode**: The student is actively studying and seeking to understand this concept\n")
	b.WriteString("**Depth**: " + tierGuidance[tier] + "\n\n")
	b.WriteString("Please provide a comprehensive, engaging learning experience that helps the student master this topic at their appropriate level.")
	return b.String()
}

func titleOrUnknown(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return "Unknown"
}

func renderTestResults(v any) string {
	if v == nil {
		return "(no test results provided)"
	}
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := decodeJSON(raw, &decoded); err != nil {
			return string(raw)
		}
		v = decoded
	}
	out, err := marshalIndent(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// prettyContent re-indents caller JSON, passing malformed input through
// unchanged.
func prettyContent(raw string) string {
	var decoded any
	if err := decodeJSON([]byte(raw), &decoded); err != nil {
		return raw
	}
	out, err := marshalIndent(decoded)
	if err != nil {
		return raw
	}
	return out
}

func decodeJSON(raw []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

func marshalIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (c *Compiler) messages(in Input) []Message {
	out := make([]Message, 0, len(in.History)+1)
	out = append(out, in.History...)

	content := in.UserMessage
	if sections := codeSections(in.Code); len(sections) > 0 {
		content = "Here is my current code:\n\n" + strings.Join(sections, "\n\n") + "\n\nMy question is: " + in.UserMessage
	}
	if strings.TrimSpace(content) != "" {
		out = append(out, Message{Role: "user", Content: content})
	}
	return out
}

func codeSections(code *CodeContext) []string {
	if code == nil {
		return nil
	}
	var parts []string
	if strings.TrimSpace(code.HTML) != "" {
		parts = append(parts, "HTML Code:\n```html\n"+code.HTML+"\n```")
	}
	if strings.TrimSpace(code.CSS) != "" {
		parts = append(parts, "CSS Code:\n```css\n"+code.CSS+"\n```")
	}
	if strings.TrimSpace(code.JS) != "" {
		parts = append(parts, "JavaScript Code:\n```javascript\n"+code.JS+"\n```")
	}
	return parts
}
