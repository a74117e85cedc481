package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetParser(t *testing.T) {
	for _, source := range []string{"", "ledger_csv", "CSV", " csv "} {
		p, err := GetParser(source)
		require.NoError(t, err, source)
		assert.NotNil(t, p)
	}

	_, err := GetParser("degiro")
	assert.Error(t, err)
}
