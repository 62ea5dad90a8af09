package engine

import (
	"fmt"
	"sort"

	"github.com/formbricks/forms/internal/models"
)

// Snapshot is the computed visibility and requiredness of every section and
// field of a template for one answer set.
type Snapshot struct {
	SectionVisibility map[string]bool `json:"section_visibility"`
	FieldVisibility   map[string]bool `json:"field_visibility"`
	FieldRequired     map[string]bool `json:"field_required"`

	// PendingValueSets holds fired setValue actions whose target does not already
	// hold the value. The session applies them as one batch.
	PendingValueSets map[string]models.Value `json:"pending_value_sets"`

	// Jumps holds fired jumpToSection candidates per section, strongest first.
	Jumps map[string][]Jump `json:"jumps,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// SectionVisible reports whether the section is visible. Unknown sections are not.
func (s *Snapshot) SectionVisible(id string) bool {
	return s.SectionVisibility[id]
}

// FieldVisible reports whether the field is visible.
func (s *Snapshot) FieldVisible(id string) bool {
	return s.FieldVisibility[id]
}

// FieldRequiredAndVisible reports whether a respondent must answer the field now.
func (s *Snapshot) FieldRequiredAndVisible(id string) bool {
	return s.FieldVisibility[id] && s.FieldRequired[id]
}

// VisibleSectionIDs returns the visible sections of t in navigation order.
func (s *Snapshot) VisibleSectionIDs(t *models.Template) []string {
	var ids []string

	for _, section := range t.SortedSections() {
		if s.SectionVisibility[section.ID] {
			ids = append(ids, section.ID)
		}
	}

	return ids
}

// ComputeSnapshot resolves every field and section rule of t against answers.
//
// An element with at least one show rule starts hidden and appears only when
// such a rule fires; everything else starts visible. Fields of a hidden section
// are hidden whatever their own rules say. A field stays required when it is
// statically required; a require rule can only add requiredness.
func ComputeSnapshot(t *models.Template, answers models.AnswerSet) *Snapshot {
	snap := &Snapshot{
		SectionVisibility: make(map[string]bool),
		FieldVisibility:   make(map[string]bool),
		FieldRequired:     make(map[string]bool),
		PendingValueSets:  make(map[string]models.Value),
		Jumps:             make(map[string][]Jump),
	}

	if t == nil {
		return snap
	}

	ev := NewEvaluator(t)

	for _, section := range t.Sections {
		sectionRes := ev.Resolve(section.ConditionalLogic, answers, section.ID, ScopeSection)
		sectionVisible := resolvedVisibility(sectionRes)
		snap.SectionVisibility[section.ID] = sectionVisible

		var candidates []Jump

		for _, field := range section.Fields {
			res := ev.Resolve(field.ConditionalLogic, answers, field.ID, ScopeField)

			visible := sectionVisible && resolvedVisibility(res)
			snap.FieldVisibility[field.ID] = visible
			snap.FieldRequired[field.ID] = field.Required || res.Required

			for _, vs := range res.ValueSets {
				target, _, ok := t.FindField(vs.FieldID)
				if !ok {
					ev.report(Diagnostic{
						Kind:     DiagUnknownSetValueTarget,
						Severity: SeverityError,
						OwnerID:  field.ID,
						RuleID:   vs.RuleID,
						FieldID:  vs.FieldID,
						Message:  fmt.Sprintf("setValue targets unknown field %q", vs.FieldID),
					})

					continue
				}

				// a rule may not store what the respondent could not enter
				if err := target.Type.Accepts(vs.Value); err != nil {
					ev.report(setValueMismatch(field.ID, vs.RuleID, target, err))

					continue
				}

				snap.PendingValueSets[vs.FieldID] = vs.Value
			}

			if visible {
				candidates = append(candidates, res.Jumps...)
			}
		}

		candidates = append(candidates, sectionRes.Jumps...)
		if jumps := rankJumps(candidates); len(jumps) > 0 {
			snap.Jumps[section.ID] = jumps
		}
	}

	// a value set that would not change the answer is not pending
	for id, v := range snap.PendingValueSets {
		if answers.Get(id).Equal(v) {
			delete(snap.PendingValueSets, id)
		}
	}

	snap.Diagnostics = ev.Diagnostics()

	return snap
}

func setValueMismatch(ownerID, ruleID string, target *models.Field, err error) Diagnostic {
	return Diagnostic{
		Kind:     DiagSetValueTypeMismatch,
		Severity: SeverityError,
		OwnerID:  ownerID,
		RuleID:   ruleID,
		FieldID:  target.ID,
		Message:  fmt.Sprintf("setValue on %s field %q: %v", target.Type, target.ID, err),
	}
}

func resolvedVisibility(res Resolution) bool {
	if res.Visible != nil {
		return *res.Visible
	}

	return !res.HasShow
}

// rankJumps orders candidates given in application order so that the highest
// priority comes first and, among equal priorities, the later-applied one wins.
func rankJumps(candidates []Jump) []Jump {
	if len(candidates) == 0 {
		return nil
	}

	ranked := make([]Jump, len(candidates))
	for i, j := range candidates {
		ranked[len(candidates)-1-i] = j
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})

	return ranked
}
