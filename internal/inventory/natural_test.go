package inventory

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNaturalLess(t *testing.T) {
	names := []string{"lidnest10", "lidnest2", "lidnest1", "exchange", "tower03"}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	assert.Equal(t, []string{"exchange", "lidnest1", "lidnest2", "lidnest10", "tower03"}, names)
}
