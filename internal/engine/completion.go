package engine

import "github.com/formbricks/forms/internal/models"

// CompletionCounts returns the number of answered visible fields and the
// number of visible fields. Fields of hidden sections never count.
func CompletionCounts(snap *Snapshot, t *models.Template, answers models.AnswerSet) (answered, total int) {
	for _, section := range t.Sections {
		if !snap.SectionVisibility[section.ID] {
			continue
		}

		for _, field := range section.Fields {
			if !snap.FieldVisibility[field.ID] {
				continue
			}

			total++

			if !answers.Get(field.ID).IsEmpty() {
				answered++
			}
		}
	}

	return answered, total
}

// Completion returns the answered share of visible fields as a percentage in
// [0,100], rounded half up. No visible fields yields 0.
func Completion(snap *Snapshot, t *models.Template, answers models.AnswerSet) int {
	answered, total := CompletionCounts(snap, t, answers)

	return Percentage(answered, total)
}

// Percentage rounds 100*num/den half up using integer arithmetic.
func Percentage(num, den int) int {
	if den <= 0 || num <= 0 {
		return 0
	}

	if num >= den {
		return 100
	}

	return (200*num + den) / (2 * den)
}
