package exam

import (
	"fmt"
	"strings"

	"github.com/exam-paper-app/papergen/internal/model"
)

// BuildAnalysisPrompt returns the fixed instruction sent ahead of the image
// parts in the analysis request.
func BuildAnalysisPrompt(s model.ExamSettings) string {
	var sb strings.Builder
	sb.WriteString("You are an experienced teacher preparing an exam for " + s.ClassName)
	if s.Board != "" {
		sb.WriteString(" (" + s.Board + " board)")
	}
	sb.WriteString(".\n\n")
	sb.WriteString("Analyze the attached textbook page images and summarize, in about 200 words, ")
	sb.WriteString("the key topics, concepts, definitions, and facts they cover. ")
	sb.WriteString("Focus only on examinable content; ignore page numbers, headers, and decorations.\n")
	return sb.String()
}

// BuildCompositionPrompt returns the composition-stage prompt. The exact
// phrasing of the count and answer-key instructions is part of the product
// contract; the counts are stated even when zero.
func BuildCompositionPrompt(s model.ExamSettings, summary string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert exam paper setter. Create a complete exam paper with these details:\n\n")
	sb.WriteString("TOPIC: " + s.Topic + "\n")
	sb.WriteString("CLASS: " + s.ClassName + "\n")
	sb.WriteString("BOARD: " + s.Board + "\n")
	if s.StudentName != "" {
		sb.WriteString("STUDENT: " + s.StudentName + "\n")
	}
	sb.WriteString(fmt.Sprintf("TOTAL MARKS: %d\n", s.TotalMarks))
	sb.WriteString(fmt.Sprintf("DURATION: %d minutes\n\n", s.DurationMinutes))

	sb.WriteString("REFERENCE MATERIAL SUMMARY:\n" + summary + "\n\n")

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString(fmt.Sprintf("- Generate exactly %d Multiple Choice Questions, exactly %d Short Answer Questions, and exactly %d Long Answer Questions.\n",
		s.MCQCount, s.ShortCount, s.LongCount))
	sb.WriteString("- Every Multiple Choice Question must have exactly four options labeled A), B), C), D), followed by a line \"Correct Answer: <letter>\".\n")
	sb.WriteString("- Separate the question types with clear section headings (Section A: Multiple Choice Questions, Section B: Short Answer Questions, Section C: Long Answer Questions).\n")
	sb.WriteString("- Distribute marks across the sections so they add up to the total marks.\n")
	sb.WriteString(fmt.Sprintf("- Write the entire paper in %s.\n", s.Language))
	sb.WriteString("- Begin with a paper header stating the topic, class, board, total marks, and duration.\n")
	return sb.String()
}
