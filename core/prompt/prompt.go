package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"ReadingFM/model"
)

const systemPrompt = `You are a music prompt generator for an AI music creation system.
Generate detailed music prompts that capture the essence of a reading journey.
Return a JSON object with exactly these fields: prompt (string), genre (string), mood (string), tempo (number, BPM between 40 and 200), description (string).

CROSSFADE RULES:
1. Keep tempo consistent with the previous track (within 10-15 BPM).
2. Ask for a gentle fade-in and fade-out so tracks can be crossfaded.
3. Use genres and moods compatible with the previous track.

The 'description' field must be a brief Korean summary (1-2 sentences) of the music's core mood and theme.`

// Moment 旅程中的一个时刻，作为上下文传给模型
type Moment struct {
	Quote    string
	Memo     string
	Emotions []string
	Genre    string
	Mood     string
	Tempo    int
}

// Request 生成请求。PriorContext 为空表示旅程开始 (v0)，Synthesis 为 true 表示完结 (vFinal)。
type Request struct {
	Book         model.BookMetadata
	PriorContext []Moment
	Current      *Moment
	Synthesis    bool
}

// Result 模型返回的结构化结果
type Result struct {
	Prompt      string  `json:"prompt"`
	Genre       string  `json:"genre"`
	Mood        string  `json:"mood"`
	Tempo       float64 `json:"tempo"`
	Description string  `json:"description"`
}

// TempoBPM 四舍五入后的整数 BPM
func (r *Result) TempoBPM() int {
	return int(math.Round(r.Tempo))
}

// incremental 模式只取最近两条作为上下文
const incrementalContextSize = 2

// BuildUserPrompt 根据模式组装用户提示
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	switch {
	case req.Synthesis:
		writeSynthesisPrompt(&b, req)
	case len(req.PriorContext) == 0:
		writeOpeningPrompt(&b, req)
	default:
		writeIncrementalPrompt(&b, req)
	}
	return strings.TrimSpace(b.String())
}

func writeOpeningPrompt(b *strings.Builder, req Request) {
	b.WriteString("Generate a music prompt for the beginning of a reading journey.\n")
	fmt.Fprintf(b, "Book: %s\n", req.Book.Title)
	if req.Book.Author != "" {
		fmt.Fprintf(b, "Author: %s\n", req.Book.Author)
	}
	if req.Book.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", req.Book.Description)
	}
	if req.Book.Category != "" {
		fmt.Fprintf(b, "Category: %s\n", req.Book.Category)
	}
	b.WriteString("\nCreate a contemplative, anticipatory mood for the start of a reading journey.\n")
	b.WriteString("- Start with a soft, gradual introduction\n")
	b.WriteString("- Use a moderate tempo (70-90 BPM)\n")
	b.WriteString("- End with a gentle fade-out suitable for crossfading\n")
}

func writeIncrementalPrompt(b *strings.Builder, req Request) {
	prev := req.PriorContext[len(req.PriorContext)-1]
	tempo, genre, mood := previousTrackTraits(prev)

	b.WriteString("Generate a music prompt for a moment in an ongoing reading journey.\n")
	fmt.Fprintf(b, "Book: %s\n\n", req.Book.Title)
	fmt.Fprintf(b, "Previous track context:\n- Genre: %s\n- Mood: %s\n- Tempo: %d BPM\n\n", genre, mood, tempo)

	recent := req.PriorContext
	if len(recent) > incrementalContextSize {
		recent = recent[len(recent)-incrementalContextSize:]
	}
	b.WriteString("Previous journey moments:\n")
	writeMoments(b, recent, false)

	if req.Current != nil {
		b.WriteString("\nCurrent moment:\n")
		writeMoment(b, *req.Current, true)
	}

	fmt.Fprintf(b, "\nKeep tempo within %d to %d BPM and stay compatible with %s for crossfading.\n", tempo-10, tempo+10, genre)
	fmt.Fprintf(b, "Open with a smooth fade-in from the %s mood and end with a gentle fade.\n", mood)
}

func writeSynthesisPrompt(b *strings.Builder, req Request) {
	tempo, genre := 80, "ambient"
	if n := len(req.PriorContext); n > 0 {
		tempo, genre, _ = previousTrackTraits(req.PriorContext[n-1])
	}

	b.WriteString("Generate a finale music prompt that synthesizes an entire reading journey.\n")
	fmt.Fprintf(b, "Book: %s\n\n", req.Book.Title)
	fmt.Fprintf(b, "Previous track context:\n- Last genre: %s\n- Last tempo: %d BPM\n\n", genre, tempo)

	b.WriteString("Previous journey moments:\n")
	writeMoments(b, req.PriorContext, true)

	if req.Current != nil {
		b.WriteString("\nFinal reflection:\n")
		writeMoment(b, *req.Current, true)
	}

	fmt.Fprintf(b, "\nBegin with a smooth crossfade from %s at %d BPM, evolve to a conclusive finale within 15 BPM,\n", genre, tempo)
	b.WriteString("and close with an extended outro that gradually fades out.\n")
}

func writeMoments(b *strings.Builder, moments []Moment, withMemo bool) {
	for i, m := range moments {
		fmt.Fprintf(b, "Moment %d:\n", i+1)
		writeMoment(b, m, withMemo)
	}
}

func writeMoment(b *strings.Builder, m Moment, withMemo bool) {
	if m.Quote != "" {
		fmt.Fprintf(b, "Quote: %q\n", m.Quote)
	}
	if len(m.Emotions) > 0 {
		fmt.Fprintf(b, "Emotions: %s\n", strings.Join(m.Emotions, ", "))
	}
	if withMemo && m.Memo != "" {
		fmt.Fprintf(b, "Reflection: %s\n", m.Memo)
	}
}

func previousTrackTraits(m Moment) (tempo int, genre, mood string) {
	tempo, genre, mood = m.Tempo, m.Genre, m.Mood
	if tempo <= 0 {
		tempo = 80
	}
	if genre == "" {
		genre = "ambient"
	}
	if mood == "" {
		mood = "contemplative"
	}
	return tempo, genre, mood
}

// 可接受的 BPM 范围，超出视为无效输出
const (
	MinTempo = 40
	MaxTempo = 200
)

// rawResult 用指针区分字段缺失与零值
type rawResult struct {
	Prompt      *string  `json:"prompt"`
	Genre       *string  `json:"genre"`
	Mood        *string  `json:"mood"`
	Tempo       *float64 `json:"tempo"`
	Description *string  `json:"description"`
}

// DecodeResult 严格解析模型输出，缺少或为空的字段直接报错，不做默认值填充
func DecodeResult(content string) (*Result, error) {
	trimmed := stripCodeFence(strings.TrimSpace(content))
	if trimmed == "" {
		return nil, errors.New("empty payload")
	}

	var raw rawResult
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var missing []string
	requireText := func(name string, v *string) string {
		if v == nil || strings.TrimSpace(*v) == "" {
			missing = append(missing, name)
			return ""
		}
		return strings.TrimSpace(*v)
	}
	res := &Result{
		Prompt:      requireText("prompt", raw.Prompt),
		Genre:       requireText("genre", raw.Genre),
		Mood:        requireText("mood", raw.Mood),
		Description: requireText("description", raw.Description),
	}
	if raw.Tempo == nil || *raw.Tempo < MinTempo || *raw.Tempo > MaxTempo {
		missing = append(missing, "tempo")
	} else {
		res.Tempo = *raw.Tempo
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("invalid payload: missing or invalid fields: %s", strings.Join(missing, ", "))
	}
	return res, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
