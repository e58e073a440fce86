package core

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"github.com/screening/resume-rag/internal/utils"
	"go.uber.org/zap"
)

const (
	maxFallbackTerms = 15
	maxStrengths     = 6
	maxGaps          = 4
	matchTemperature = 0.2
	defaultMaxLogLen = 200
)

//go:embed match_prompt.md
var matchPromptTemplate string

// ErrMalformedAnalysis is returned when the generated analysis does not match the expected shape.
var ErrMalformedAnalysis = errors.New("malformed match analysis")

// MatchAnalysis is the output of both scoring strategies.
type MatchAnalysis struct {
	Score     float64  `json:"match_score"`
	Strengths []string `json:"strengths"`
	Gaps      []string `json:"gaps"`
	Insights  string   `json:"insights"`
	// Fallback is set when the deterministic strategy produced the result.
	Fallback bool `json:"-"`
}

type Matcher struct {
	generator llm.Generator
	timeout   time.Duration
	logger    *zap.Logger
	maxLogLen int
}

func NewMatcher(generator llm.Generator, timeout time.Duration, l *zap.Logger) *Matcher {
	return &Matcher{
		generator: generator,
		timeout:   timeout,
		logger:    logger.OrNop(l),
		maxLogLen: defaultMaxLogLen,
	}
}

// Score never fails: any error from the generative strategy routes to FallbackMatch.
func (m *Matcher) Score(ctx context.Context, resumeTerms []string, jobText, resumeText string) MatchAnalysis {
	if m.generator != nil {
		analysis, err := m.generate(ctx, jobText, resumeText)
		if err == nil {
			return *analysis
		}
		m.logger.Warn("generative match scoring failed, using keyword fallback", zap.Error(err))
	}
	return FallbackMatch(resumeTerms, jobText)
}

func (m *Matcher) generate(ctx context.Context, jobText, resumeText string) (*MatchAnalysis, error) {
	prompt := buildMatchPrompt(resumeText, jobText)

	m.logger.Debug("match scoring request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	callCtx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	raw, err := m.generator.Generate(callCtx, []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		llm.GenerateOptions{Temperature: matchTemperature, JSON: true})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("match scoring response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	return parseMatchAnalysis(raw)
}

func buildMatchPrompt(resumeText, jobText string) string {
	prompt := strings.ReplaceAll(matchPromptTemplate, "{{RESUME}}", resumeText)
	return strings.ReplaceAll(prompt, "{{JOB_DESCRIPTION}}", jobText)
}

type matchPayload struct {
	MatchScore *float64 `json:"match_score"`
	Strengths  []string `json:"strengths"`
	Gaps       []string `json:"gaps"`
	Insights   *string  `json:"insights"`
}

// parseMatchAnalysis decodes the generated JSON strictly: every field is
// required and the score must lie in [0, 100].
func parseMatchAnalysis(raw string) (*MatchAnalysis, error) {
	var payload matchPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(extractJSON(raw))))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}

	switch {
	case payload.MatchScore == nil:
		return nil, fmt.Errorf("%w: missing match_score", ErrMalformedAnalysis)
	case math.IsNaN(*payload.MatchScore) || *payload.MatchScore < 0 || *payload.MatchScore > 100:
		return nil, fmt.Errorf("%w: match_score %v out of range", ErrMalformedAnalysis, *payload.MatchScore)
	case payload.Strengths == nil:
		return nil, fmt.Errorf("%w: missing strengths", ErrMalformedAnalysis)
	case payload.Gaps == nil:
		return nil, fmt.Errorf("%w: missing gaps", ErrMalformedAnalysis)
	case payload.Insights == nil || strings.TrimSpace(*payload.Insights) == "":
		return nil, fmt.Errorf("%w: missing insights", ErrMalformedAnalysis)
	}

	return &MatchAnalysis{
		Score:     round2(*payload.MatchScore),
		Strengths: cleanStatements(payload.Strengths, maxStrengths),
		Gaps:      cleanStatements(payload.Gaps, maxGaps),
		Insights:  strings.TrimSpace(*payload.Insights),
	}, nil
}

// extractJSON returns the outermost {...} span of a model reply, which may be
// wrapped in a markdown fence or surrounded by prose.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end < start {
		return strings.TrimSpace(raw)
	}
	return raw[start : end+1]
}

func cleanStatements(list []string, limit int) []string {
	out := make([]string, 0, min(len(list), limit))
	for _, s := range list {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

// FallbackMatch scores the resume by the share of distinct job-description
// words that appear among the resume terms. It is pure and deterministic.
func FallbackMatch(resumeTerms []string, jobText string) MatchAnalysis {
	resumeSet := make(map[string]struct{}, len(resumeTerms))
	for _, t := range resumeTerms {
		resumeSet[t] = struct{}{}
	}

	var jobTokens []string
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(jobText)) {
		token := strings.Trim(field, ",;:()[]\"'!?")
		token = strings.TrimRight(token, ".")
		if utf8.RuneCountInString(token) <= 2 {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		jobTokens = append(jobTokens, token)
	}

	strengths := []string{}
	gaps := []string{}
	matched := 0
	for _, token := range jobTokens {
		if _, ok := resumeSet[token]; ok {
			matched++
			if len(strengths) < maxFallbackTerms {
				strengths = append(strengths, token)
			}
		} else if len(gaps) < maxFallbackTerms {
			gaps = append(gaps, token)
		}
	}

	ratio := math.Min(1, float64(matched)/float64(max(len(jobTokens), 1)))
	score := round2(ratio * 100)

	return MatchAnalysis{
		Score:     score,
		Strengths: strengths,
		Gaps:      gaps,
		Insights: fmt.Sprintf("Keyword coverage: the resume mentions %d of %d distinct job description terms (%.2f%%).",
			matched, len(jobTokens), score),
		Fallback: true,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
