package commands

import (
	"net"
	"strconv"

	"github.com/marmos91/concess/pkg/api"
	"github.com/marmos91/concess/pkg/apiclient"
	"github.com/marmos91/concess/pkg/config"
)

// newAPIClient returns a client for the operations API. An explicit url
// wins; otherwise the address and token come from the configuration, or
// the API defaults when no configuration can be loaded.
func newAPIClient(url string) *apiclient.Client {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		cfg = nil
	}

	if url == "" {
		url = apiURL(cfg)
	}
	client := apiclient.New(url)
	if cfg != nil && cfg.API.Token != "" {
		client = client.WithToken(cfg.API.Token)
	}
	return client
}

// apiURL derives the local API address from cfg.
func apiURL(cfg *config.Config) string {
	host, port := "127.0.0.1", api.DefaultPort
	if cfg != nil {
		if cfg.API.Port > 0 {
			port = cfg.API.Port
		}
		if ip := net.ParseIP(cfg.API.BindAddress); ip != nil && !ip.IsUnspecified() {
			host = ip.String()
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
