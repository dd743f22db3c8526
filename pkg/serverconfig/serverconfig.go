// Package serverconfig holds the compiled-in server endpoints used by the
// socket client. Edit the constants here to change the servers; they are
// deliberately not read from the config file or the environment.
package serverconfig

// PrimaryURL is the server base URL (without the /socket.io/ path) tried first.
const PrimaryURL = "https://webs01.dostenterprises.com"

// DefaultForcePolling is the developer preference for forcing the polling
// transport. Nothing selects a transport from it yet.
const DefaultForcePolling = false

var fallbackURLs = []string{
	PrimaryURL,
	"https://car01.dostenterprises.com:8090",
	// local/emulator defaults for development
	"http://192.168.1.35:3000",
	"http://localhost:3000",
}

// FallbackURLs returns the ordered endpoint list, primary first.
// Each call returns a fresh copy.
func FallbackURLs() []string {
	urls := make([]string, len(fallbackURLs))
	copy(urls, fallbackURLs)
	return urls
}

// Endpoints is the endpoint configuration record.
type Endpoints struct {
	PrimaryURL    string   `json:"primary_url"`
	FallbackURLs  []string `json:"fallback_urls"`
	PreferPolling bool     `json:"prefer_polling"`
}

// Default returns the compiled-in endpoint configuration
func Default() Endpoints {
	return Endpoints{
		PrimaryURL:    PrimaryURL,
		FallbackURLs:  FallbackURLs(),
		PreferPolling: DefaultForcePolling,
	}
}
