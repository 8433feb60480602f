package services

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/validation"
)

var hundred = decimal.NewFromInt(100)

// EvaluateTree validates every item of tree and derives section completeness and
// the document's completeness percentage.
//
// Requiredness and instance bounds come from structure. Item type and validation
// rules come from the copy stored on each item when it was created.
func EvaluateTree(tree *models.DocumentTree, structure *models.Structure, now time.Time) *models.CompletionResult {
	result := &models.CompletionResult{
		DocumentID:  tree.Document.ID,
		Sections:    make([]models.SectionResult, 0, len(tree.Sections)),
		Items:       []models.ItemResult{},
		EvaluatedAt: now,
	}

	// satisfied[structureSectionID] counts instances whose required items are all valid
	satisfied := make(map[int64]int)
	instanceOK := make(map[int64]bool, len(tree.Sections))

	for i := range tree.Sections {
		section := &tree.Sections[i]
		def, _ := structure.Section(section.StructureSectionID)

		ok := true
		present := make(map[int64]bool, len(section.Items))
		for j := range section.Items {
			item := &section.Items[j]
			required := item.IsRequired
			if def != nil {
				if itemDef, found := def.Item(item.StructureSectionItemID); found {
					required = itemDef.IsRequired
				}
			}

			errs := validation.ValidateItem(item.Type, item.ValidationRules, required, item.Content)
			valid := len(errs) == 0
			result.Items = append(result.Items, models.ItemResult{
				ItemID:           item.ID,
				IsValid:          valid,
				ValidationErrors: errs,
			})

			if required && !valid {
				ok = false
			}
			if valid && !validation.IsEmpty(item.Type, item.Content) {
				present[item.StructureSectionItemID] = true
			}
		}

		// a required item that was never instantiated cannot be satisfied
		if def != nil {
			for _, itemDef := range def.Items {
				if itemDef.IsRequired && !present[itemDef.ID] {
					ok = false
				}
			}
		}

		instanceOK[section.ID] = ok
		if ok {
			satisfied[section.StructureSectionID]++
		}
	}

	for i := range tree.Sections {
		section := &tree.Sections[i]
		complete := instanceOK[section.ID]
		if def, found := structure.Section(section.StructureSectionID); found && def.IsRepeatable {
			complete = complete && withinBounds(def, len(tree.InstancesOf(def.ID)))
		}
		result.Sections = append(result.Sections, models.SectionResult{
			SectionID:          section.ID,
			StructureSectionID: section.StructureSectionID,
			InstanceNumber:     section.InstanceNumber,
			IsComplete:         complete,
		})
	}

	result.CompletenessPercentage = completeness(tree, structure, instanceOK, satisfied)
	return result
}

func withinBounds(def *models.StructureSection, count int) bool {
	if count < def.MinInstances() {
		return false
	}
	limit := def.MaxInstances()
	return limit == 0 || count <= limit
}

// completeness averages the fraction satisfied of every required section and
// truncates the percentage to two decimals. A document without required
// sections is complete.
func completeness(tree *models.DocumentTree, structure *models.Structure, instanceOK map[int64]bool, satisfied map[int64]int) decimal.Decimal {
	total := new(big.Rat)
	required := 0

	for i := range structure.Sections {
		def := &structure.Sections[i]
		if !def.IsRequired {
			continue
		}
		required++

		instances := tree.InstancesOf(def.ID)
		if !def.IsRepeatable {
			if len(instances) > 0 && instanceOK[instances[0].ID] {
				total.Add(total, big.NewRat(1, 1))
			}
			continue
		}

		allOK := len(instances) > 0
		for _, inst := range instances {
			allOK = allOK && instanceOK[inst.ID]
		}
		if allOK && withinBounds(def, len(instances)) {
			total.Add(total, big.NewRat(1, 1))
			continue
		}

		slots := int64(def.MinInstances())
		filled := min(int64(satisfied[def.ID]), slots)
		if filled == slots {
			// incomplete sections never count as fully satisfied
			filled = slots - 1
		}
		total.Add(total, big.NewRat(filled, slots))
	}

	if required == 0 {
		return hundred
	}

	// pct = total * 100 / required, truncated to hundredths
	pct := new(big.Rat).Mul(total, big.NewRat(100, int64(required)))
	hundredths := new(big.Int).Mul(pct.Num(), big.NewInt(100))
	hundredths.Quo(hundredths, pct.Denom())

	value := decimal.NewFromBigInt(hundredths, -2)
	if value.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if value.GreaterThan(hundred) {
		return hundred
	}
	return value
}
