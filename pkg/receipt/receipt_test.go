//go:build unit || !integration

package receipt

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/jobmesh-project/jobmesh/pkg/dagstore"
	"github.com/jobmesh-project/jobmesh/pkg/logger"
	"github.com/jobmesh-project/jobmesh/pkg/models"
)

type ReceiptSuite struct {
	suite.Suite
	key    crypto.PrivKey
	issuer peer.ID
}

func TestReceiptSuite(t *testing.T) {
	suite.Run(t, new(ReceiptSuite))
}

func (s *ReceiptSuite) SetupSuite() {
	logger.ConfigureTestLogging(s.T())
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	s.Require().NoError(err)
	issuer, err := peer.IDFromPrivateKey(key)
	s.Require().NoError(err)
	s.key = key
	s.issuer = issuer
}

func (s *ReceiptSuite) makeReceipt() models.ExecutionReceipt {
	return NewReceipt(s.issuer, "job-1", "bid-1", "bafyexamplecode", true,
		models.ExecutionMetrics{HostCalls: 12, IOBytes: 4096, WallTimeMS: 1500},
		models.Resources{CPU: 1, Memory: 512 * 1024 * 1024},
		time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ReceiptSuite) TestContentAddressDeterministic() {
	r := s.makeReceipt()
	first, err := ContentAddress(r)
	s.Require().NoError(err)
	second, err := ContentAddress(r)
	s.Require().NoError(err)
	s.Equal(first.String(), second.String())
}

func (s *ReceiptSuite) TestContentAddressExcludesOnlyStoredCid() {
	r := s.makeReceipt()
	base, err := ContentAddress(r)
	s.Require().NoError(err)

	// Populating the stored CID field does not change the address.
	withCid := r
	withCid.ReceiptCID = base.String()
	again, err := ContentAddress(withCid)
	s.Require().NoError(err)
	s.Equal(base.String(), again.String())

	// Any other field, the signature included, does.
	signed := r
	s.Require().NoError(Sign(&signed, s.key))
	different, err := ContentAddress(signed)
	s.Require().NoError(err)
	s.NotEqual(base.String(), different.String())
}

func (s *ReceiptSuite) TestSignVerifyRoundTrip() {
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	s.NoError(Verify(r))
}

func (s *ReceiptSuite) TestVerifyMissingSignature() {
	r := s.makeReceipt()
	err := Verify(r)
	s.Require().Error(err)
	var missing ErrMissingSignature
	s.True(errors.As(err, &missing))
}

func (s *ReceiptSuite) TestVerifyTamperedSignature() {
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	r.Signature[0] ^= 0xff
	err := Verify(r)
	s.Require().Error(err)
	var invalid ErrSignatureInvalid
	s.True(errors.As(err, &invalid))
	var missing ErrMissingSignature
	s.False(errors.As(err, &missing))
}

func (s *ReceiptSuite) TestVerifyWrongKey() {
	other, _, err := crypto.GenerateEd25519Key(rand.Reader)
	s.Require().NoError(err)

	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, other))
	verr := Verify(r)
	s.Require().Error(verr)
	var invalid ErrSignatureInvalid
	s.True(errors.As(verr, &invalid))
}

func (s *ReceiptSuite) TestVerifyTamperedPayload() {
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	r.JobID = "job-2"
	var invalid ErrSignatureInvalid
	s.True(errors.As(Verify(r), &invalid))
}

func (s *ReceiptSuite) TestVerifyBadIssuer() {
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	r.Issuer = "not-a-peer-id"
	var bad ErrBadIssuer
	s.True(errors.As(Verify(r), &bad))
}

func (s *ReceiptSuite) TestSignTwiceRejected() {
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	err := Sign(&r, s.key)
	var already ErrAlreadySigned
	s.True(errors.As(err, &already))
}

func (s *ReceiptSuite) TestSignatureSurvivesOutcomeAmendment() {
	// Anchoring amends outcome fields after signing. The signature covers
	// identity and provenance only, so it still verifies.
	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))
	r.AnchoredRefs = append(r.AnchoredRefs, "bafyextraartifact")
	s.NoError(Verify(r))
}

func (s *ReceiptSuite) TestAnchorRoundTrip() {
	ctx := context.Background()
	svc := NewService(ServiceParams{Store: dagstore.NewInMemoryStore()})

	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))

	addr, err := svc.Anchor(ctx, &r)
	s.Require().NoError(err)
	s.Equal(addr.String(), r.ReceiptCID)
	s.True(svc.IsAnchored(addr))

	fetched, err := svc.Fetch(ctx, addr)
	s.Require().NoError(err)
	s.Equal(r.ID, fetched.ID)
	s.Equal(r.Signature, fetched.Signature)
	s.NoError(Verify(fetched))
}

func (s *ReceiptSuite) TestAnchorTwiceSameAddress() {
	ctx := context.Background()
	svc := NewService(ServiceParams{Store: dagstore.NewInMemoryStore()})

	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))

	first, err := svc.Anchor(ctx, &r)
	s.Require().NoError(err)
	second, err := svc.Anchor(ctx, &r)
	s.Require().NoError(err)
	s.Equal(first.String(), second.String())
}

type failingStore struct{}

func (failingStore) Put(context.Context, []byte) (cid.Cid, error) {
	return cid.Undef, errors.New("store unavailable")
}

func (failingStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	return nil, dagstore.NewErrNotFound(c)
}

func (failingStore) Has(context.Context, cid.Cid) (bool, error) {
	return false, errors.New("store unavailable")
}

func (s *ReceiptSuite) TestAnchorFailureStillYieldsLocalAddress() {
	ctx := context.Background()
	svc := NewService(ServiceParams{Store: failingStore{}})

	r := s.makeReceipt()
	s.Require().NoError(Sign(&r, s.key))

	local, err := ContentAddress(r)
	s.Require().NoError(err)

	addr, anchorErr := svc.Anchor(ctx, &r)
	s.Require().Error(anchorErr)
	s.Equal(local.String(), addr.String())
	s.Equal(local.String(), r.ReceiptCID)
	s.False(svc.IsAnchored(addr))
}
