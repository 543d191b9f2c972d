package receipt

import "fmt"

// ErrMissingSignature is returned by Verify when the receipt carries no
// signature at all. Distinct from a signature that is present but wrong.
type ErrMissingSignature struct {
	ReceiptID string
}

func NewErrMissingSignature(id string) ErrMissingSignature {
	return ErrMissingSignature{ReceiptID: id}
}

func (e ErrMissingSignature) Error() string {
	return "receipt " + e.ReceiptID + " has no signature"
}

// ErrBadIssuer is returned when the issuer identity string cannot be parsed
// or a public key cannot be derived from it.
type ErrBadIssuer struct {
	Issuer string
	Err    error
}

func NewErrBadIssuer(issuer string, err error) ErrBadIssuer {
	return ErrBadIssuer{Issuer: issuer, Err: err}
}

func (e ErrBadIssuer) Error() string {
	return fmt.Sprintf("cannot derive a public key from issuer %q: %v", e.Issuer, e.Err)
}

func (e ErrBadIssuer) Unwrap() error {
	return e.Err
}

// ErrSignatureInvalid is returned when cryptographic verification of a
// present signature fails against the re-serialized signing payload.
type ErrSignatureInvalid struct {
	ReceiptID string
}

func NewErrSignatureInvalid(id string) ErrSignatureInvalid {
	return ErrSignatureInvalid{ReceiptID: id}
}

func (e ErrSignatureInvalid) Error() string {
	return "receipt " + e.ReceiptID + " signature does not verify against its payload"
}

// ErrAlreadySigned rejects re-signing: a signature, once set, is never
// altered.
type ErrAlreadySigned struct {
	ReceiptID string
}

func NewErrAlreadySigned(id string) ErrAlreadySigned {
	return ErrAlreadySigned{ReceiptID: id}
}

func (e ErrAlreadySigned) Error() string {
	return "receipt " + e.ReceiptID + " is already signed"
}
