package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEndpointsValidates(t *testing.T) {
	t.Parallel()

	_, err := NewEndpoints("documenti.camera.it", "https://www.senato.it")
	require.Error(t, err)

	_, err = NewEndpoints("https://documenti.camera.it", "/relative")
	require.Error(t, err)

	_, err = NewEndpoints("https://documenti.camera.it", "https://www.senato.it")
	require.NoError(t, err)
}

func TestTranscriptAndInfoURLs(t *testing.T) {
	t.Parallel()

	e, err := NewEndpoints("https://documenti.camera.it", "https://www.senato.it")
	require.NoError(t, err)

	require.Equal(t,
		"https://documenti.camera.it/leg19/resoconti/assemblea/html/sed0042/stenografico.pdf",
		e.TranscriptPDF(19, 42),
	)
	require.Equal(t,
		"https://documenti.camera.it/leg19/resoconti/assemblea/html/sed0042/stenografico.htm",
		e.SessionInfo(19, 42),
	)
}

func TestListingURLs(t *testing.T) {
	t.Parallel()

	e, err := NewEndpoints("https://documenti.camera.it", "https://www.senato.it")
	require.NoError(t, err)

	require.Equal(t,
		"https://www.senato.it/legislature/18/lavori/assemblea/resoconti-elenco-cronologico?year=2019",
		e.Listing(18, 2019, false),
	)
	// The running legislature is served from an unversioned path.
	require.Equal(t,
		"https://www.senato.it/lavori/assemblea/resoconti-elenco-cronologico?year=2025",
		e.Listing(19, 2025, true),
	)
}
