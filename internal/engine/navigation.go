package engine

import (
	"fmt"

	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

// Direction is a sequential navigation intent.
type Direction string

// Navigation directions.
const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
)

// ParseDirection converts a string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionNext, DirectionPrevious:
		return d, nil
	default:
		return "", fmt.Errorf("invalid direction: %q", s)
	}
}

// NavResult is where navigation lands. End means there is no further visible
// section and the respondent should be offered submission. NoContent is set
// together with End when no section is visible at all.
type NavResult struct {
	SectionID string `json:"section_id,omitempty"`
	End       bool   `json:"end"`
	NoContent bool   `json:"no_content"`
	ViaJump   bool   `json:"via_jump,omitempty"`
	JumpRule  string `json:"jump_rule,omitempty"`
}

func endResult(noContent bool) NavResult {
	return NavResult{End: true, NoContent: noContent}
}

// navIndex is the ordered section list of a template with lookup by ID.
type navIndex struct {
	order    []string
	position map[string]int
	visible  map[string]bool
}

func newNavIndex(snap *Snapshot, t *models.Template) navIndex {
	sorted := t.SortedSections()
	idx := navIndex{
		order:    make([]string, len(sorted)),
		position: make(map[string]int, len(sorted)),
		visible:  snap.SectionVisibility,
	}

	for i, section := range sorted {
		idx.order[i] = section.ID
		if _, dup := idx.position[section.ID]; !dup {
			idx.position[section.ID] = i
		}
	}

	return idx
}

func (n navIndex) anyVisible() bool {
	for _, id := range n.order {
		if n.visible[id] {
			return true
		}
	}

	return false
}

// after returns the first visible section strictly after position pos.
func (n navIndex) after(pos int) (string, bool) {
	for i := pos + 1; i < len(n.order); i++ {
		if n.visible[n.order[i]] {
			return n.order[i], true
		}
	}

	return "", false
}

// before returns the last visible section strictly before position pos.
func (n navIndex) before(pos int) (string, bool) {
	for i := pos - 1; i >= 0; i-- {
		if n.visible[n.order[i]] {
			return n.order[i], true
		}
	}

	return "", false
}

// StartSection returns the section a fresh session opens on: the default
// section, or the next visible one after it when the default is hidden.
func StartSection(snap *Snapshot, t *models.Template) NavResult {
	return ResolveCurrent(snap, t, t.DefaultSectionID())
}

// ResolveCurrent keeps a respondent off hidden sections. A visible current
// section is returned as is; a hidden one falls forward to the next visible
// section after its position. An unknown current section resolves to the
// first visible section.
func ResolveCurrent(snap *Snapshot, t *models.Template, currentID string) NavResult {
	idx := newNavIndex(snap, t)
	if !idx.anyVisible() {
		return endResult(true)
	}

	pos, known := idx.position[currentID]
	if !known {
		pos = -1
	}

	if known && idx.visible[currentID] {
		return NavResult{SectionID: currentID}
	}

	if next, ok := idx.after(pos); ok {
		return NavResult{SectionID: next}
	}

	return endResult(false)
}

// NextSection moves from currentID in the given direction.
//
// Moving forward prefers the strongest fired jump of the current section whose
// target is visible, unless navigation is linear. Otherwise it takes the next
// visible section in order, or End past the last one. Moving back requires
// back navigation and lands on the previous visible section. Illegal moves
// return a *huberrors.NavigationError.
func NextSection(snap *Snapshot, t *models.Template, currentID string, dir Direction) (NavResult, error) {
	idx := newNavIndex(snap, t)
	if !idx.anyVisible() {
		return endResult(true), nil
	}

	pos, known := idx.position[currentID]
	if !known {
		pos = -1
	}

	switch dir {
	case DirectionNext:
		if known && idx.visible[currentID] && t.Navigation.Type != models.NavigationLinear {
			for _, jump := range snap.Jumps[currentID] {
				if jump.TargetSectionID != currentID && idx.visible[jump.TargetSectionID] {
					return NavResult{SectionID: jump.TargetSectionID, ViaJump: true, JumpRule: jump.RuleID}, nil
				}
			}
		}

		if next, ok := idx.after(pos); ok {
			return NavResult{SectionID: next}, nil
		}

		return endResult(false), nil
	case DirectionPrevious:
		if !t.Navigation.AllowBackNavigation {
			return NavResult{}, huberrors.NewNavigationError(currentID, "back navigation is disabled")
		}

		if !known {
			return NavResult{}, huberrors.NewNavigationError(currentID, "unknown current section")
		}

		if prev, ok := idx.before(pos); ok {
			return NavResult{SectionID: prev}, nil
		}

		return NavResult{}, huberrors.NewNavigationError(currentID, "already at the first section")
	default:
		return NavResult{}, huberrors.NewNavigationError(currentID, fmt.Sprintf("invalid direction %q", dir))
	}
}

// JumpTo moves directly to targetID. The target must exist and be visible;
// a backward move needs back navigation; linear navigation only allows moving
// to the adjacent visible section.
func JumpTo(snap *Snapshot, t *models.Template, currentID, targetID string) (NavResult, error) {
	idx := newNavIndex(snap, t)

	targetPos, ok := idx.position[targetID]
	if !ok {
		return NavResult{}, huberrors.NewNavigationError(targetID, "unknown section: "+targetID)
	}

	if !idx.visible[targetID] {
		return NavResult{}, huberrors.NewNavigationError(targetID, "section is hidden: "+targetID)
	}

	currentPos, known := idx.position[currentID]
	if !known {
		currentPos = -1
	}

	if targetID == currentID {
		return NavResult{SectionID: targetID}, nil
	}

	if targetPos < currentPos && !t.Navigation.AllowBackNavigation {
		return NavResult{}, huberrors.NewNavigationError(targetID, "back navigation is disabled")
	}

	if t.Navigation.Type == models.NavigationLinear {
		next, hasNext := idx.after(currentPos)
		prev, hasPrev := idx.before(currentPos)

		adjacent := (hasNext && next == targetID) || (hasPrev && prev == targetID)
		if !adjacent {
			return NavResult{}, huberrors.NewNavigationError(targetID, "linear navigation cannot skip sections")
		}
	}

	return NavResult{SectionID: targetID}, nil
}
