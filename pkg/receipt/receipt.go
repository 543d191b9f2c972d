package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

var receiptCidBuilder = cid.V1Builder{
	Codec:  cid.DagJSON,
	MhType: mh.SHA2_256,
}

// NewReceipt assembles an unsigned receipt for a finished execution.
// The caller signs it afterwards with Sign.
func NewReceipt(issuer peer.ID, jobID, proposalID, codeRef string,
	success bool, metrics models.ExecutionMetrics, usage models.Resources, now time.Time) models.ExecutionReceipt {
	return models.ExecutionReceipt{
		ID:            uuid.NewString(),
		Issuer:        issuer.String(),
		JobID:         jobID,
		ProposalID:    proposalID,
		CodeRef:       codeRef,
		Success:       success,
		Metrics:       metrics,
		ResourceUsage: usage,
		Timestamp:     now.UTC(),
	}
}

// signingPayload is the canonical byte serialization a signature commits to.
// It covers the identity and provenance fields only. Outcome fields can be
// amended by anchoring without invalidating the signature, and the CID is
// derived after signing so it can never be part of the signed bytes.
type signingPayload struct {
	ID         string    `json:"ID"`
	Issuer     string    `json:"Issuer"`
	JobID      string    `json:"JobID"`
	ProposalID string    `json:"ProposalID"`
	CodeRef    string    `json:"CodeRef"`
	Timestamp  time.Time `json:"Timestamp"`
}

// SigningPayload returns the exact bytes Sign signs and Verify checks.
func SigningPayload(r models.ExecutionReceipt) ([]byte, error) {
	return models.JSONMarshalWithMax(signingPayload{
		ID:         r.ID,
		Issuer:     r.Issuer,
		JobID:      r.JobID,
		ProposalID: r.ProposalID,
		CodeRef:    r.CodeRef,
		Timestamp:  r.Timestamp,
	})
}

// ContentAddress derives the receipt's content identifier. Only the stored
// ReceiptCID field is excluded from hashing, so two receipts that differ in
// any other field, the signature included, address differently.
func ContentAddress(r models.ExecutionReceipt) (cid.Cid, error) {
	clone := r
	clone.ReceiptCID = ""
	data, err := models.JSONMarshalWithMax(clone)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "serializing receipt for content addressing")
	}
	return receiptCidBuilder.Sum(data)
}

// Sign attaches the issuer's signature over the receipt's signing payload.
// The private key must be the one behind the receipt's Issuer identity.
// Re-signing an already signed receipt is an error.
func Sign(r *models.ExecutionReceipt, key crypto.PrivKey) error {
	if len(r.Signature) > 0 {
		return NewErrAlreadySigned(r.ID)
	}
	payload, err := SigningPayload(*r)
	if err != nil {
		return errors.Wrap(err, "serializing receipt signing payload")
	}
	sig, err := key.Sign(payload)
	if err != nil {
		return errors.Wrap(err, "signing receipt")
	}
	r.Signature = sig
	return nil
}

// Verify checks the receipt's signature using only the Issuer identity
// string, from which the public key is recovered. The error distinguishes a
// missing signature, an unusable issuer, and a failing signature.
func Verify(r models.ExecutionReceipt) error {
	if len(r.Signature) == 0 {
		return NewErrMissingSignature(r.ID)
	}
	issuer, err := peer.Decode(r.Issuer)
	if err != nil {
		return NewErrBadIssuer(r.Issuer, err)
	}
	pub, err := issuer.ExtractPublicKey()
	if err != nil {
		return NewErrBadIssuer(r.Issuer, err)
	}
	payload, err := SigningPayload(r)
	if err != nil {
		return errors.Wrap(err, "serializing receipt signing payload")
	}
	ok, err := pub.Verify(payload, r.Signature)
	if err != nil || !ok {
		return NewErrSignatureInvalid(r.ID)
	}
	return nil
}
