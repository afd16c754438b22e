package partition

import (
	"fmt"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Option locates a category's checkbox in the remote object-type picker.
type Option struct {
	Group int
	Index int
}

type category struct {
	name   string
	option Option
}

// The remote form groups object types into extragalactic (1), wavelength
// sources (2), and galactic/stellar (3) option lists.
var knownCategories = []category{
	{"G", Option{1, 0}},
	{"GPair", Option{1, 1}},
	{"GTrpl", Option{1, 2}},
	{"GGroup", Option{1, 3}},
	{"GClstr", Option{1, 4}},
	{"QSO", Option{1, 5}},
	{"QGroup", Option{1, 6}},
	{"G_Lens-Q_Lens", Option{1, 7}},
	{"AbLS", Option{1, 8}},
	{"EmLS", Option{1, 9}},

	{"SN", Option{3, 0}},
	{"HII", Option{3, 1}},
	{"PN", Option{3, 2}},
	{"SNR", Option{3, 3}},
	{"*Ass", Option{3, 4}},
	{"*Cl", Option{3, 5}},
	{"MCld", Option{3, 6}},
	{"Nova", Option{3, 7}},
	{"V*", Option{3, 8}},
	{"WR*", Option{3, 9}},
	{"C*", Option{3, 10}},
	{"PofG", Option{3, 11}},
	{"Other", Option{3, 12}},
	{"*", Option{3, 13}},
	{"Blue*", Option{3, 14}},
	{"Red*", Option{3, 15}},
	{"Psr", Option{3, 16}},
	{"RfN", Option{3, 17}},
	{"**", Option{3, 18}},
	{"EmObj", Option{3, 19}},
	{"Neb", Option{3, 20}},
	{"WD", Option{3, 21}},

	{"RadioS", Option{2, 0}},
	{"SmmS", Option{2, 1}},
	{"IrS", Option{2, 2}},
	{"VisS", Option{2, 3}},
	{"UvS", Option{2, 4}},
	{"UvES", Option{2, 5}},
	{"XrayS", Option{2, 6}},
	{"GammaS", Option{2, 7}},
}

var categoryIndex = func() map[string]Option {
	idx := make(map[string]Option, len(knownCategories))
	for _, c := range knownCategories {
		idx[c.name] = c.option
	}
	return idx
}()

// Categories returns every known category name in canonical order.
func Categories() []string {
	out := make([]string, len(knownCategories))
	for i, c := range knownCategories {
		out[i] = c.name
	}
	return out
}

// Lookup resolves a category name to its form option.
func Lookup(name string) (Option, error) {
	opt, ok := categoryIndex[name]
	if !ok {
		return Option{}, fmt.Errorf("%w: %q", harvest.ErrInvalidCategory, name)
	}
	return opt, nil
}
