package dagstore

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	httpapi "github.com/ipfs/go-ipfs-http-client"
	"github.com/ipfs/go-libipfs/files"
	iface "github.com/ipfs/interface-go-ipfs-core"
	"github.com/ipfs/interface-go-ipfs-core/options"
	"github.com/ipfs/interface-go-ipfs-core/path"
	"github.com/pkg/errors"
)

// IPFSStore anchors blobs in an IPFS node reachable over its HTTP API. The
// node decides the final encoding, so addresses returned by Put are
// authoritative and may differ from locally derived ones.
type IPFSStore struct {
	api iface.CoreAPI
}

type IPFSStoreParams struct {
	// APIAddr is the node's HTTP API endpoint, e.g. "http://127.0.0.1:5001".
	APIAddr string
	Timeout time.Duration
}

func NewIPFSStore(params IPFSStoreParams) (*IPFSStore, error) {
	if params.Timeout == 0 {
		params.Timeout = 30 * time.Second //nolint:gomnd
	}
	client := &http.Client{Timeout: params.Timeout}
	api, err := httpapi.NewURLApiWithClient(params.APIAddr, client)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to IPFS API at %s", params.APIAddr)
	}
	return &IPFSStore{api: api}, nil
}

func (s *IPFSStore) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	stat, err := s.api.Block().Put(ctx, files.NewBytesFile(data),
		options.Block.Format("dag-json"),
		options.Block.Pin(true),
	)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "putting block")
	}
	return stat.Path().Cid(), nil
}

func (s *IPFSStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	reader, err := s.api.Block().Get(ctx, path.IpfsPath(c))
	if err != nil {
		if isNotFound(err) {
			return nil, NewErrNotFound(c)
		}
		return nil, errors.Wrapf(err, "getting block %s", c)
	}
	return io.ReadAll(reader)
}

func (s *IPFSStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	_, err := s.api.Block().Stat(ctx, path.IpfsPath(c))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isNotFound matches the loosely typed errors the HTTP API returns for
// missing blocks.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

var _ Store = (*IPFSStore)(nil)
