package preset_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2g-flex-tools/nBEAT/internal/preset"
)

func TestDefaultCatalog(t *testing.T) {
	c := preset.Default()
	all := c.All()
	require.NotEmpty(t, all)

	seen := map[string]bool{}
	for _, d := range all {
		assert.False(t, seen[d.ID], "duplicate %s", d.ID)
		seen[d.ID] = true
		assert.True(t, d.Category.Valid(), d.ID)
		assert.NotEmpty(t, d.Name, d.ID)
		assert.Greater(t, d.RecommendedMinutes, 0.0, d.ID)
	}

	for _, id := range []string{
		"custom", "alien-ambience",
		"lucid-basic", "lucid-advanced", "lucid-gamma",
		"astral-deep-theta", "astral-epsilon-lambda", "astral-777",
		"astral-vibrational", "astral-relaxation", "astral-progressive",
		"remote-crv", "remote-erv", "remote-arv",
		"gateway-focus10", "gateway-focus12", "gateway-focus15", "gateway-focus21",
	} {
		assert.True(t, seen[id], id)
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	c := preset.Default()
	d, ok := c.Lookup("alpha-relaxation")
	require.True(t, ok)
	assert.Equal(t, preset.Relaxation, d.Category)
	assert.Equal(t, 20*time.Minute, d.RecommendedDuration())

	d.Benefits[0] = "mutated"
	again, _ := c.Lookup("alpha-relaxation")
	assert.NotEqual(t, "mutated", again.Benefits[0])
}

func TestGetUnknown(t *testing.T) {
	_, err := preset.Default().Get("nope")
	assert.ErrorIs(t, err, preset.ErrUnknownPreset)
}

func TestByCategory(t *testing.T) {
	gateway := preset.Default().ByCategory(preset.Gateway)
	assert.Len(t, gateway, 4)
	guided := preset.Default().ByCategory(preset.Guided)
	require.Len(t, guided, 1)
	assert.Equal(t, "body-scan", guided[0].Script)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"missing id":   "- name: x\n  category: sleep\n  base_frequency: 100\n",
		"bad category": "- id: x\n  category: nope\n  base_frequency: 100\n",
		"zero base":    "- id: x\n  category: sleep\n",
		"duplicate":    "- id: x\n  category: sleep\n  base_frequency: 100\n- id: x\n  category: sleep\n  base_frequency: 100\n",
		"not yaml":     "{",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := preset.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
