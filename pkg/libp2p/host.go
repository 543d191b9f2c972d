package libp2p

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// GetOrCreatePrivateKey loads the node's Ed25519 identity key from the given
// path, generating and persisting one on first use. Ed25519 keeps the public
// key recoverable from the peer ID, which receipt verification relies on.
func GetOrCreatePrivateKey(path string) (crypto.PrivKey, error) {
	if _, err := os.Stat(path); err == nil {
		encoded, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading private key %s", path)
		}
		raw, err := base64.StdEncoding.DecodeString(string(encoded))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding private key %s", path)
		}
		return crypto.UnmarshalPrivateKey(raw)
	}

	prvKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	raw, err := crypto.MarshalPrivateKey(prvKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "creating key directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(raw)), 0o600); err != nil {
		return nil, errors.Wrapf(err, "writing private key %s", path)
	}
	return prvKey, nil
}

// NewHost creates a libp2p host listening on the given TCP and QUIC port
// with the node's identity key.
func NewHost(port int, prvKey crypto.PrivKey, opts ...libp2p.Option) (host.Host, error) {
	addrs := []string{
		"/ip4/0.0.0.0/tcp/%d",
		"/ip4/0.0.0.0/udp/%d/quic-v1",
		"/ip6/::/tcp/%d",
		"/ip6/::/udp/%d/quic-v1",
	}
	listenAddrs := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		addr, addrErr := multiaddr.NewMultiaddr(fmt.Sprintf(s, port))
		if addrErr != nil {
			return nil, addrErr
		}
		listenAddrs = append(listenAddrs, addr)
	}

	opts = append(opts, libp2p.ListenAddrs(listenAddrs...))
	opts = append(opts, libp2p.Identity(prvKey))
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("host-id", h.ID()).
		Int("port", port).
		Msg("started libp2p host")
	return h, nil
}

// ConnectToPeers dials the given peers, grouping addresses by peer ID so
// each peer is dialed once.
func ConnectToPeers(ctx context.Context, h host.Host, peers []multiaddr.Multiaddr) error {
	var result *multierror.Error

	grouped := map[peer.ID][]multiaddr.Multiaddr{}
	for _, peerAddress := range peers {
		info, err := peer.AddrInfoFromP2pAddr(peerAddress)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "parsing peer address %s", peerAddress))
			continue
		}
		grouped[info.ID] = append(grouped[info.ID], info.Addrs...)
	}

	for id, addresses := range grouped {
		h.Peerstore().AddAddrs(id, addresses, peerstore.PermanentAddrTTL)
		if err := h.Connect(ctx, peer.AddrInfo{ID: id, Addrs: addresses}); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "connecting to peer %s", id))
			continue
		}
		log.Ctx(ctx).Debug().Stringer("peer", id).Msg("connected to peer")
	}
	return result.ErrorOrNil()
}
