package indices

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/partition"
)

// Selectors of the query-by-parameters form.
const (
	challengeLabelSelector = "label[for=edit-cortcap-t]"
	challengeInputSelector = "#edit-cortcap-t"
	skyAreaToggleSelector  = "#bt"
	raRangeSelector        = "#edit-rarange"
	decRangeSelector       = "#edit-decrange"
	raMinSelector          = "#edit-ra1"
	raMaxSelector          = "#edit-ra2"
	decMinSelector         = "#edit-dec1"
	decMaxSelector         = "#edit-dec2"
	typeToggleSelector     = `#bt[tooltip="Include or exclude objects of specified type"]`
	submitSelector         = "#edit-submit"
	resultLinkSelector     = "a[target=out]"
	rangeModeBetween       = "Between"
)

var challengePattern = regexp.MustCompile(`(\d+) \+ (\d+)`)

// solveChallenge answers the arithmetic access gate shown in label.
func solveChallenge(label string) (int, error) {
	m := challengePattern.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", harvest.ErrChallengeUnsolvable, label)
	}
	a, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", harvest.ErrChallengeUnsolvable, err)
	}
	b, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", harvest.ErrChallengeUnsolvable, err)
	}
	return a + b, nil
}

// skyArea is the set of form values constraining a partition's ranges.
type skyArea struct {
	RAMin, RAMax, DecMin, DecMax string
}

func skyAreaFor(p harvest.Partition) skyArea {
	return skyArea{
		RAMin:  harvest.FormHMS(p.PrimaryMin),
		RAMax:  harvest.FormHMS(partition.FormUpperBound(p.PrimaryMax)),
		DecMin: harvest.FormHMS(p.SecondaryMin),
		DecMax: harvest.FormHMS(partition.FormUpperBound(p.SecondaryMax)),
	}
}

func categorySelector(opt partition.Option) string {
	return fmt.Sprintf("#ui-multiselect-edit-in-objtypes%d-option-%d", opt.Group, opt.Index)
}

func fillForm(ctx context.Context, s harvest.Session, p harvest.Partition, opt partition.Option) error {
	var label string
	if err := s.Evaluate(ctx, textOf(challengeLabelSelector), &label); err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}
	answer, err := solveChallenge(label)
	if err != nil {
		return err
	}
	if err := s.Fill(ctx, challengeInputSelector, strconv.Itoa(answer)); err != nil {
		return fmt.Errorf("answer challenge: %w", err)
	}

	area := skyAreaFor(p)
	if err := s.Click(ctx, skyAreaToggleSelector); err != nil {
		return fmt.Errorf("open sky area: %w", err)
	}
	for _, sel := range []string{raRangeSelector, decRangeSelector} {
		if err := s.Select(ctx, sel, rangeModeBetween); err != nil {
			return fmt.Errorf("set range mode: %w", err)
		}
	}
	for _, field := range []struct{ selector, value string }{
		{raMinSelector, area.RAMin},
		{raMaxSelector, area.RAMax},
		{decMinSelector, area.DecMin},
		{decMaxSelector, area.DecMax},
	} {
		if err := s.Fill(ctx, field.selector, field.value); err != nil {
			return fmt.Errorf("set sky area: %w", err)
		}
	}

	if err := s.Click(ctx, typeToggleSelector); err != nil {
		return fmt.Errorf("open object types: %w", err)
	}
	var clicked bool
	if err := s.Evaluate(ctx, clickOf(categorySelector(opt)), &clicked); err != nil {
		return fmt.Errorf("select object type %s: %w", p.Category, err)
	}
	if !clicked {
		return harvest.Remote("select object type", p.Category, fmt.Errorf("option %s not present", categorySelector(opt)))
	}
	return nil
}

// textOf evaluates to the trimmed text of selector, or "" when absent.
func textOf(selector string) string {
	return fmt.Sprintf(`((el) => el ? el.innerText.trim() : '')(document.querySelector(%s))`, quote(selector))
}

// clickOf clicks selector even if hidden and evaluates to whether it existed.
func clickOf(selector string) string {
	return fmt.Sprintf(`((el) => { if (!el) return false; el.click(); return true; })(document.querySelector(%s))`, quote(selector))
}

func presenceOf(selector string) string {
	return fmt.Sprintf(`!!document.querySelector(%s)`, quote(selector))
}

func hrefOf(selector string) string {
	return fmt.Sprintf(`((el) => el ? el.href : '')(document.querySelector(%s))`, quote(selector))
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
