package indices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/partition"
)

func TestSolveChallenge(t *testing.T) {
	t.Parallel()

	answer, err := solveChallenge("Math question: 12 + 30 =")
	require.NoError(t, err)
	assert.Equal(t, 42, answer)

	_, err = solveChallenge("Type the letters shown")
	require.ErrorIs(t, err, harvest.ErrChallengeUnsolvable)
}

func TestSkyAreaFor(t *testing.T) {
	t.Parallel()

	first := skyAreaFor(harvest.Partition{
		PrimaryMin:   0,
		PrimaryMax:   2 * time.Minute,
		SecondaryMin: 0,
		SecondaryMax: 12 * time.Hour,
		Category:     "G",
	})
	assert.Equal(t, skyArea{RAMin: "0:00:00", RAMax: "0:02:00", DecMin: "0:00:00", DecMax: "12:00:00"}, first)

	last := skyAreaFor(lastPartition)
	assert.Equal(t, skyArea{RAMin: "23:58:00", RAMax: "23:59:59", DecMin: "12:00:00", DecMax: "23:59:59"}, last)
}

func TestCategorySelector(t *testing.T) {
	t.Parallel()

	opt, err := partition.Lookup("QSO")
	require.NoError(t, err)
	assert.Equal(t, "#ui-multiselect-edit-in-objtypes1-option-5", categorySelector(opt))
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `!!document.querySelector("a[target=out]")`, presenceOf(resultLinkSelector))
	assert.Contains(t, clickOf(typeToggleSelector), `"#bt[tooltip=\"Include or exclude objects of specified type\"]"`)
}
