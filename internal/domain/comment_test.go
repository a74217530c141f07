package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseComment_TagsAndMeta(t *testing.T) {
	cm := ParseComment("recovery|strategy:trend|depth:2")

	assert.True(t, cm.HasTag("recovery"))
	assert.Equal(t, "trend", cm.Strategy())
	assert.Equal(t, 2, cm.RecoveryDepth())
}

func TestParseComment_MalformedSegmentsIgnored(t *testing.T) {
	// segmentos malformados no deben romper el resto del comment
	cm := ParseComment("strategy:grid|:novalue|nokey:|  |plain")

	assert.Equal(t, "grid", cm.Strategy())
	assert.True(t, cm.HasTag("plain"))
	assert.Len(t, cm.Meta, 1)
}

func TestParseComment_Empty(t *testing.T) {
	cm := ParseComment("")
	assert.Empty(t, cm.Tags)
	assert.Empty(t, cm.Meta)
	assert.Equal(t, 0, cm.RecoveryDepth())
}

func TestParseComment_BadDepthDefaultsToZero(t *testing.T) {
	assert.Equal(t, 0, ParseComment("depth:abc").RecoveryDepth())
	assert.Equal(t, 0, ParseComment("depth:-3").RecoveryDepth())
}

func TestFormatComment_RoundTrip(t *testing.T) {
	c := FormatComment([]string{"recovery"}, map[string]string{
		MetaStrategy: "martingale",
		MetaDepth:    "1",
	})

	cm := ParseComment(c)
	assert.True(t, cm.HasTag("recovery"))
	assert.Equal(t, "martingale", cm.Strategy())
	assert.Equal(t, 1, cm.RecoveryDepth())
}
