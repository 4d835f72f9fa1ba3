package localservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"zh":      "zh",
		"zh-CN":   "zh",
		"zh-TW":   "zh",
		"zh_hk":   "zh",
		"zh-Hant": "zh",
		"en-US":   "en",
		"ja":      "ja",
	}
	for in, want := range tests {
		got, err := NormalizeCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeCode("??")
	assert.Error(t, err)
}

func TestScriptConverter(t *testing.T) {
	c := NewScriptConverter()

	out, err := c.ConvertFor("zh-TW", "汉语")
	require.NoError(t, err)
	assert.Equal(t, "漢語", out)

	out, err = c.ConvertFor("zh-CN", "汉语")
	require.NoError(t, err)
	assert.Equal(t, "汉语", out)

	out, err = c.ConvertFor("en", "汉语")
	require.NoError(t, err)
	assert.Equal(t, "汉语", out)
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, "s2tw", profileFor("zh-TW"))
	assert.Equal(t, "s2hk", profileFor("zh-HK"))
	assert.Equal(t, "s2hk", profileFor("zh-MO"))
	assert.Equal(t, "s2t", profileFor("zh-Hant"))
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, "de", resolveSource(fakeIdentifier{code: "de", confidence: 0.8}, "x", 0.5, "en"))
	assert.Equal(t, "en", resolveSource(fakeIdentifier{code: "de", confidence: 0.4}, "x", 0.5, "en"))
	assert.Equal(t, "en", resolveSource(fakeIdentifier{}, "x", 0.5, "en"))
	assert.Equal(t, "en", resolveSource(nil, "x", 0.5, "en"))
}

func TestLinguaIdentifier(t *testing.T) {
	if testing.Short() {
		t.Skip("loads language models")
	}
	id := NewLinguaIdentifier([]string{"en", "de", "fr"})
	code, confidence, ok := id.Identify("The quick brown fox jumps over the lazy dog and keeps running")
	require.True(t, ok)
	assert.Equal(t, "en", code)
	assert.Greater(t, confidence, 0.5)
}
