package radius

import (
	"fmt"
	"net"
)

type client struct {
	name    string
	network *net.IPNet
	secret  []byte
}

// secretStore resolves the shared secret of a NAS from its source address.
type secretStore struct {
	clients  []client
	fallback []byte
}

func newSecretStore(cfg Config) (*secretStore, error) {
	s := &secretStore{}
	if cfg.Secret != "" {
		s.fallback = []byte(cfg.Secret)
	}
	for i, cl := range cfg.Clients {
		_, network, err := net.ParseCIDR(cl.Network)
		if err != nil {
			return nil, fmt.Errorf("radius client %d: %w", i, err)
		}
		name := cl.Name
		if name == "" {
			name = network.String()
		}
		s.clients = append(s.clients, client{name: name, network: network, secret: []byte(cl.Secret)})
	}
	return s, nil
}

// lookup returns the client name and secret for ip. ok is false when no
// client matches and there is no fallback secret.
func (s *secretStore) lookup(ip net.IP) (name string, secret []byte, ok bool) {
	for _, c := range s.clients {
		if c.network.Contains(ip) {
			return c.name, c.secret, true
		}
	}
	if s.fallback != nil {
		return "default", s.fallback, true
	}
	return "", nil, false
}
