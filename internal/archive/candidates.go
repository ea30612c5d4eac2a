package archive

import (
	"slices"

	"github.com/bhm-spectra/specviewer/internal/identifier"
)

// Branch selectors that expand into a candidate list instead of naming one branch.
const (
	SelectorMaster = "master"
	SelectorLegacy = "legacy"
)

// BranchLists holds the ordered fallback candidates per era, most likely first.
type BranchLists struct {
	Legacy []string `yaml:"legacy"`
	BOSS   []string `yaml:"boss"`
	SDSSV  []string `yaml:"sdssv"`
	Stacks []string `yaml:"stacks"`
}

// DefaultBranchLists returns the candidate order that follows the deployment
// history of each instrument generation.
func DefaultBranchLists() BranchLists {
	return BranchLists{
		Legacy: []string{"26", "103", "104"},
		BOSS: []string{
			"v5_13_2", "v5_13_0", "v5_10_0", "v5_9_0", "v5_7_2", "v5_7_0", "v5_6_5", "v5_5_12", "v5_4_45",
		},
		SDSSV:  []string{"master", "v6_2_1", "v6_2_0", "v6_1_3", "v6_1_1", "v6_1_0", "v6_0_9", "v6_0_4"},
		Stacks: []string{"master", "v6_2_1", "v6_2_0", "v6_1_3", "v6_1_1"},
	}
}

// Policy decides which branches the fallback search tries for an identifier.
type Policy struct {
	lists BranchLists
}

// NewPolicy builds a policy. Empty lists fall back to DefaultBranchLists.
func NewPolicy(lists BranchLists) *Policy {
	defaults := DefaultBranchLists()

	return &Policy{lists: BranchLists{
		Legacy: normalizeList(lists.Legacy, defaults.Legacy),
		BOSS:   normalizeList(lists.BOSS, defaults.BOSS),
		SDSSV:  normalizeList(lists.SDSSV, defaults.SDSSV),
		Stacks: normalizeList(lists.Stacks, defaults.Stacks),
	}}
}

// Lists returns a copy of the effective candidate lists.
func (p *Policy) Lists() BranchLists {
	return BranchLists{
		Legacy: slices.Clone(p.lists.Legacy),
		BOSS:   slices.Clone(p.lists.BOSS),
		SDSSV:  slices.Clone(p.lists.SDSSV),
		Stacks: slices.Clone(p.lists.Stacks),
	}
}

// Candidates returns the ordered branches to try for id.
//
// An empty request or "master" expands to the era's full list. "legacy"
// restricts that list to public data releases. Any other value is taken as an
// explicit branch and tried alone.
func (p *Policy) Candidates(id identifier.ID, requested string) []string {
	branch := NormalizeBranch(requested)
	if branch != "" && branch != SelectorMaster && branch != SelectorLegacy {
		return []string{branch}
	}

	var list []string

	switch {
	case id.Field.IsStack():
		list = slices.Clone(p.lists.Stacks)
	case id.Field.Era() == identifier.EraLegacy:
		list = slices.Clone(p.lists.Legacy)
	case id.Field.Era() == identifier.EraBOSS:
		list = slices.Clone(p.lists.BOSS)
	default:
		list = slices.Clone(p.lists.SDSSV)
		if id.Field.PlateSuffix {
			list = plateSuffixFirst(list)
		}
	}

	if branch == SelectorLegacy {
		list = slices.DeleteFunc(list, func(b string) bool { return !IsPublic(b) })
	}

	return list
}

// plateSuffixFirst moves plate-suffix layout branches to the front, keeping relative order.
func plateSuffixFirst(list []string) []string {
	ordered := make([]string, 0, len(list))

	for _, b := range list {
		if ClassifyLayout(b) == LayoutPlateSuffix {
			ordered = append(ordered, b)
		}
	}

	for _, b := range list {
		if ClassifyLayout(b) != LayoutPlateSuffix {
			ordered = append(ordered, b)
		}
	}

	return ordered
}

func normalizeList(list, fallback []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))

	for _, b := range list {
		nb := NormalizeBranch(b)
		if nb == "" || seen[nb] {
			continue
		}

		seen[nb] = true
		out = append(out, nb)
	}

	if len(out) == 0 {
		return slices.Clone(fallback)
	}

	return out
}
