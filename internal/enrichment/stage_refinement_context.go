package enrichment

// refinementContextStage always runs last: it states the completion
// signal contract and guardrails every worker session must honor.
// Grounded on original_source/enricher/refinement_context.py.
func (p *Pipeline) refinementContextStage(in Input, remaining int) *StageResult {
	content := `## Instructions

- Make the smallest change that satisfies the task.
- When the work is complete, end your final message with exactly:
  <promise>COMPLETE</promise>
- If you need a human decision before you can proceed, end your final
  message with:
  <promise>NEEDS_DECISION</promise>
  followed by the question.
- Do not invent files, APIs, or dependencies that are not present in
  the project.
- Prefer editing existing files over creating new ones.`
	return &StageResult{Content: content}
}
