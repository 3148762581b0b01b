package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuessOrganization(t *testing.T) {
	assert.Equal(t, "Sequoia", GuessOrganization("partner@sequoia.com"))
	assert.Equal(t, "Acme", GuessOrganization("jane@acme.io"))
	assert.Equal(t, "Acme", GuessOrganization("jane@ACME.io"))

	// Free mail providers carry no organization signal.
	assert.Empty(t, GuessOrganization("someone@gmail.com"))
	assert.Empty(t, GuessOrganization("someone@proton.me"))

	assert.Empty(t, GuessOrganization("not-an-address"))
}
