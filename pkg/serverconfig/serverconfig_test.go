package serverconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryURL(t *testing.T) {
	assert.Equal(t, "https://webs01.dostenterprises.com", PrimaryURL)
}

func TestFallbackURLs_Order(t *testing.T) {
	urls := FallbackURLs()

	require.Len(t, urls, 4)
	assert.Equal(t, []string{
		PrimaryURL,
		"https://car01.dostenterprises.com:8090",
		"http://192.168.1.35:3000",
		"http://localhost:3000",
	}, urls)
}

func TestFallbackURLs_ReturnsCopy(t *testing.T) {
	urls := FallbackURLs()
	urls[0] = "http://example.invalid"

	assert.Equal(t, PrimaryURL, FallbackURLs()[0])
}

func TestDefaultForcePolling(t *testing.T) {
	assert.False(t, DefaultForcePolling)
}

func TestDefault(t *testing.T) {
	eps := Default()

	assert.Equal(t, PrimaryURL, eps.PrimaryURL)
	assert.Equal(t, FallbackURLs(), eps.FallbackURLs)
	assert.False(t, eps.PreferPolling)
}
