package hyperliquid

import (
	"crypto/ecdsa"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/mo"
	"github.com/sonirico/go-hyperliquid"

	"hl-signal-bot/internal/errs"
)

// Signature is the r/s/v triple the exchange expects next to every action.
type Signature = hyperliquid.SignatureResult

// Signer holds the key, network and optional vault used for L1 action
// signatures. Hashing and EIP-712 encoding are done by the SDK.
type Signer struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	isMainnet bool
	vault     mo.Option[common.Address]
}

func NewSigner(key *ecdsa.PrivateKey, isMainnet bool, vaultAddress string) *Signer {
	s := &Signer{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		isMainnet: isMainnet,
	}
	if vaultAddress != "" {
		s.vault = mo.Some(common.HexToAddress(vaultAddress))
	}
	return s
}

// Address is the signing wallet's address; it may differ from the trading account
// when an API wallet signs on the account's behalf.
func (s *Signer) Address() common.Address { return s.address }

func (s *Signer) Vault() mo.Option[common.Address] { return s.vault }

func (s *Signer) SignL1Action(action any, nonce uint64) (sig Signature, err error) {
	const op = "sign action"
	if nonce > math.MaxInt64 {
		return Signature{}, errs.New(errs.SigningFailure, op, "nonce %d out of range", nonce)
	}
	vault := ""
	if addr, ok := s.vault.Get(); ok {
		vault = addr.Hex()
	}

	// the SDK panics when the action cannot be msgpack-encoded
	defer func() {
		if r := recover(); r != nil {
			sig, err = Signature{}, errs.Wrap(errs.SigningFailure, op, fmt.Errorf("%v", r))
		}
	}()
	sig, err = hyperliquid.SignL1Action(s.key, action, vault, int64(nonce), nil, s.isMainnet)
	if err != nil {
		return Signature{}, errs.Wrap(errs.SigningFailure, op, err)
	}
	return sig, nil
}
