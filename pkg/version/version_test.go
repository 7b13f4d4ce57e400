package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/ordmap/pkg/version"
)

func TestString(t *testing.T) {
	version.InitBinaryVersion()

	got := version.String()
	assert.Contains(t, got, version.Version)
	assert.Contains(t, got, "commit: "+version.Commit)
	assert.Contains(t, got, "built: "+version.Date)
	assert.NotEmpty(t, version.Version)
}
