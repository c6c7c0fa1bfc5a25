// Package grading implements the automatic scoring rules for test
// answers. Scoring is a pure function of the question configuration
// and the submitted answer; persistence and attempt aggregation live
// in the service layer.
package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// fuzzyMatchThreshold is the minimum sequence-similarity ratio at which
// a non-identical open answer still earns full points.
const fuzzyMatchThreshold = 0.85

// matchingPairPenalty is the fraction of one pair's worth deducted per
// wrong submitted pair.
const matchingPairPenalty = 0.25

// Result is the outcome of scoring a single answer. Points is only
// meaningful when NeedsManualReview is false.
type Result struct {
	Points            float64
	NeedsManualReview bool
}

// Pair is one left/right matching entry, already normalized.
type Pair struct {
	Left  string
	Right string
}

// Score grades an answer against its question. The question's options
// must be preloaded for select-style types. An unrecognized question
// type is an error rather than a zero score.
func Score(question models.Question, answer models.Answer) (Result, error) {
	switch question.Type {
	case models.QuestionTypeMultipleChoice:
		return scoreMultipleChoice(question, answer), nil
	case models.QuestionTypeChooseAll:
		return scoreChooseAll(question, answer), nil
	case models.QuestionTypeOpen:
		return scoreOpen(question, answer), nil
	case models.QuestionTypeMatching:
		return scoreMatching(question, answer), nil
	default:
		return Result{}, fmt.Errorf("unsupported question type %q", question.Type)
	}
}

// scoreMultipleChoice awards full points only when exactly one option
// was selected and it belongs to the question's correct set.
func scoreMultipleChoice(question models.Question, answer models.Answer) Result {
	if len(answer.SelectedOptions) != 1 {
		return Result{}
	}

	correct := correctOptionIDs(question)
	if _, ok := correct[answer.SelectedOptions[0].ID]; ok {
		return Result{Points: question.Points}
	}
	return Result{}
}

// scoreChooseAll gives proportional credit per correct option selected,
// but any incorrect selection zeroes the answer.
func scoreChooseAll(question models.Question, answer models.Answer) Result {
	correct := correctOptionIDs(question)
	if len(correct) == 0 {
		return Result{}
	}

	selectedCorrect := 0
	for _, option := range answer.SelectedOptions {
		if _, ok := correct[option.ID]; !ok {
			return Result{}
		}
		selectedCorrect++
	}

	ratio := float64(selectedCorrect) / float64(len(correct))
	return Result{Points: ratio * question.Points}
}

// scoreOpen grades free text. Keywords take precedence over the
// reference answer; with neither configured the answer is routed to
// manual review.
func scoreOpen(question models.Question, answer models.Answer) Result {
	text := strings.TrimSpace(answer.TextAnswer)

	if strings.TrimSpace(question.KeyWords) != "" && text != "" {
		lowered := strings.ToLower(text)
		for _, keyword := range strings.Split(question.KeyWords, ",") {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				continue
			}
			// Substring match is intentional: "photo" in the keyword
			// list accepts "photosynthesis".
			if strings.Contains(lowered, keyword) {
				return Result{Points: question.Points}
			}
		}
		return Result{}
	}

	if strings.TrimSpace(question.CorrectAnswerText) != "" {
		if text == "" {
			return Result{}
		}

		expected := normalizeText(question.CorrectAnswerText)
		actual := normalizeText(text)
		if expected == actual {
			return Result{Points: question.Points}
		}
		if similarityRatio(expected, actual) >= fuzzyMatchThreshold {
			return Result{Points: question.Points}
		}
		return Result{}
	}

	return Result{NeedsManualReview: true}
}

// scoreMatching compares the submitted pair set against the configured
// one. Duplicated submissions count once; each wrong pair costs a flat
// quarter of one pair's worth, floored at zero.
func scoreMatching(question models.Question, answer models.Answer) Result {
	correctSet := pairSet(DecodePairs(question.MatchingPairs))
	submitted := dedupePairs(DecodePairs(answer.MatchPairs))
	if len(correctSet) == 0 || len(submitted) == 0 {
		return Result{}
	}

	correctCount := 0
	for _, pair := range submitted {
		if _, ok := correctSet[pair]; ok {
			correctCount++
		}
	}
	incorrectCount := len(submitted) - correctCount

	if correctCount == len(correctSet) && incorrectCount == 0 {
		return Result{Points: question.Points}
	}

	total := float64(len(correctSet))
	ratio := float64(correctCount)/total - float64(incorrectCount)*matchingPairPenalty/total
	if ratio < 0 {
		ratio = 0
	}
	return Result{Points: ratio * question.Points}
}

// DecodePairs parses a JSON pair list, normalizing each entry and
// silently skipping entries that lack a left or right key.
func DecodePairs(raw []byte) []Pair {
	if len(raw) == 0 {
		return nil
	}

	var entries []map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	pairs := make([]Pair, 0, len(entries))
	for _, entry := range entries {
		left, leftOK := entry["left"]
		right, rightOK := entry["right"]
		if !leftOK || !rightOK {
			continue
		}
		pairs = append(pairs, Pair{
			Left:  strings.ToLower(strings.TrimSpace(left)),
			Right: strings.ToLower(strings.TrimSpace(right)),
		})
	}
	return pairs
}

func dedupePairs(pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(pairs))
	unique := make([]Pair, 0, len(pairs))
	for _, pair := range pairs {
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		unique = append(unique, pair)
	}
	return unique
}

func pairSet(pairs []Pair) map[Pair]struct{} {
	set := make(map[Pair]struct{}, len(pairs))
	for _, pair := range pairs {
		set[pair] = struct{}{}
	}
	return set
}

func correctOptionIDs(question models.Question) map[uint]struct{} {
	ids := make(map[uint]struct{})
	for _, option := range question.Options {
		if option.IsCorrect {
			ids[option.ID] = struct{}{}
		}
	}
	return ids
}

// normalizeText lowercases, trims and collapses internal whitespace
// runs to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// similarityRatio computes a character-level sequence similarity in
// [0,1] between two normalized strings.
func similarityRatio(a, b string) float64 {
	matcher := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return matcher.Ratio()
}
