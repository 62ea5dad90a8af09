package session

import (
	"sort"

	"github.com/formbricks/forms/internal/models"
)

func keys(answers models.AnswerSet) []string {
	out := make([]string, 0, len(answers))
	for id := range answers {
		out = append(out, id)
	}

	return out
}

// sortedIDs returns ids sorted and without duplicates.
func sortedIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	sort.Strings(ids)

	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}

	return out
}
