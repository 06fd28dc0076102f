// Package abicodec encodes and decodes the fixed set of contract calls the
// vault engine needs: a 4-byte selector followed by 32-byte big-endian words.
//
// It is not a general ABI implementation. Dynamic types are only supported on
// the decoding side, where callers walk offsets explicitly through Payload.
package abicodec

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
)

// WordSize is the size of one ABI word in bytes.
const WordSize = 32

// Selector is the first 4 bytes of the Keccak-256 hash of a function signature.
type Selector [4]byte

// Fixed selectors used by the engine.
var (
	SelectorBalanceOf          = MustParseSelector("0x70a08231") // balanceOf(address)
	SelectorAllowance          = MustParseSelector("0xdd62ed3e") // allowance(address,address)
	SelectorApprove            = MustParseSelector("0x095ea7b3") // approve(address,uint256)
	SelectorOperate            = MustParseSelector("0x690d8320") // operate(uint256,int256,int256,address)
	SelectorGetVaultEntireData = MustParseSelector("0x09c062e2") // getVaultEntireData(address)
	SelectorPositionsByUser    = MustParseSelector("0x347ca8bb") // positionsByUser(address)
)

// ParseSelector parses a 4-byte hex selector with optional 0x prefix.
func ParseSelector(s string) (Selector, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Selector{}, err
	}
	if len(b) != 4 {
		return Selector{}, &entity.DecodingError{Reason: fmt.Sprintf("selector must be 4 bytes, got %d", len(b))}
	}
	var sel Selector
	copy(sel[:], b)
	return sel, nil
}

// MustParseSelector is like ParseSelector but panics on error.
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// SelectorFor derives the selector of a canonical function signature,
// e.g. "balanceOf(address)".
func SelectorFor(signature string) Selector {
	var sel Selector
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// Hex returns the 0x-prefixed selector.
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

// Param is a single static call parameter.
type Param interface {
	word() ([WordSize]byte, error)
}

type uintParam struct{ v *big.Int }

type intParam struct{ v *big.Int }

type addressParam struct{ a common.Address }

// Uint256 encodes v as an unsigned 256-bit word.
func Uint256(v *big.Int) Param { return uintParam{v: v} }

// Uint64 is a convenience wrapper around Uint256.
func Uint64(v uint64) Param { return uintParam{v: new(big.Int).SetUint64(v)} }

// Int256 encodes v as a signed 256-bit two's complement word.
func Int256(v *big.Int) Param { return intParam{v: v} }

// Address encodes a as a left-zero-padded word.
func Address(a common.Address) Param { return addressParam{a: a} }

func (p uintParam) word() ([WordSize]byte, error) {
	if p.v == nil {
		return [WordSize]byte{}, fmt.Errorf("uint256 parameter is nil")
	}
	if p.v.Sign() < 0 {
		return [WordSize]byte{}, fmt.Errorf("uint256 parameter is negative: %s", p.v)
	}
	u, overflow := uint256.FromBig(p.v)
	if overflow {
		return [WordSize]byte{}, fmt.Errorf("uint256 parameter overflows 256 bits: %s", p.v)
	}
	return u.Bytes32(), nil
}

var int256Min = new(big.Int).Lsh(big.NewInt(1), 255)

func (p intParam) word() ([WordSize]byte, error) {
	if p.v == nil {
		return [WordSize]byte{}, fmt.Errorf("int256 parameter is nil")
	}
	abs := new(big.Int).Abs(p.v)
	if p.v.Sign() >= 0 && abs.Cmp(int256Min) >= 0 {
		return [WordSize]byte{}, fmt.Errorf("int256 parameter overflows: %s", p.v)
	}
	if p.v.Sign() < 0 && abs.Cmp(int256Min) > 0 {
		return [WordSize]byte{}, fmt.Errorf("int256 parameter underflows: %s", p.v)
	}
	u, _ := uint256.FromBig(abs)
	if p.v.Sign() < 0 {
		u.Neg(u)
	}
	return u.Bytes32(), nil
}

func (p addressParam) word() ([WordSize]byte, error) {
	var w [WordSize]byte
	copy(w[WordSize-common.AddressLength:], p.a.Bytes())
	return w, nil
}

// EncodeCall renders selector + params as 0x-prefixed call data.
func EncodeCall(selector Selector, params ...Param) (string, error) {
	buf := make([]byte, 0, 4+len(params)*WordSize)
	buf = append(buf, selector[:]...)
	for i, p := range params {
		w, err := p.word()
		if err != nil {
			return "", fmt.Errorf("encoding parameter %d for %s: %w", i, selector.Hex(), err)
		}
		buf = append(buf, w[:]...)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// DecodeUint reads the wordIndex-th 32-byte word of a hex payload as an
// unsigned integer.
func DecodeUint(hexData string, wordIndex int) (*big.Int, error) {
	p, err := Decode(hexData)
	if err != nil {
		return nil, err
	}
	return p.Uint(wordIndex)
}

// DecodeWords splits a payload into unsigned words.
func DecodeWords(hexData string) ([]*big.Int, error) {
	p, err := Decode(hexData)
	if err != nil {
		return nil, err
	}
	out := make([]*big.Int, p.Words())
	for i := range out {
		out[i], _ = p.Uint(i)
	}
	return out, nil
}

// DecodeAddress reads the wordIndex-th word as an address.
func DecodeAddress(hexData string, wordIndex int) (common.Address, error) {
	p, err := Decode(hexData)
	if err != nil {
		return common.Address{}, err
	}
	return p.Address(wordIndex)
}

// Payload is a validated, word-addressable return payload.
type Payload struct {
	data []byte
}

// Decode validates a hex payload. The length must be a whole number of words.
func Decode(hexData string) (*Payload, error) {
	b, err := decodeHex(hexData)
	if err != nil {
		return nil, err
	}
	if len(b)%WordSize != 0 {
		return nil, &entity.DecodingError{Reason: fmt.Sprintf("payload length %d is not a multiple of %d", len(b), WordSize)}
	}
	return &Payload{data: b}, nil
}

// Words returns the number of 32-byte words in the payload.
func (p *Payload) Words() int {
	return len(p.data) / WordSize
}

// Word returns the raw bytes of the i-th word.
func (p *Payload) Word(i int) ([WordSize]byte, error) {
	var w [WordSize]byte
	if i < 0 || i >= p.Words() {
		return w, &entity.DecodingError{Reason: fmt.Sprintf("word %d out of range: payload has %d words", i, p.Words())}
	}
	copy(w[:], p.data[i*WordSize:(i+1)*WordSize])
	return w, nil
}

// Uint returns the i-th word as an unsigned integer.
func (p *Payload) Uint(i int) (*big.Int, error) {
	w, err := p.Word(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w[:]), nil
}

// Int returns the i-th word as a signed two's complement integer.
func (p *Payload) Int(i int) (*big.Int, error) {
	w, err := p.Word(i)
	if err != nil {
		return nil, err
	}
	u := new(uint256.Int).SetBytes32(w[:])
	if u.Sign() >= 0 {
		return u.ToBig(), nil
	}
	return new(big.Int).Neg(new(uint256.Int).Neg(u).ToBig()), nil
}

// Address returns the low 20 bytes of the i-th word. The high 12 bytes must
// be zero.
func (p *Payload) Address(i int) (common.Address, error) {
	w, err := p.Word(i)
	if err != nil {
		return common.Address{}, err
	}
	for _, b := range w[:WordSize-common.AddressLength] {
		if b != 0 {
			return common.Address{}, &entity.DecodingError{Reason: fmt.Sprintf("word %d is not a left-padded address", i)}
		}
	}
	return common.BytesToAddress(w[WordSize-common.AddressLength:]), nil
}

// WordOffset reads the i-th word as a byte offset and converts it into a word
// index. The offset must be word aligned and inside the payload.
func (p *Payload) WordOffset(i int) (int, error) {
	off, err := p.Uint(i)
	if err != nil {
		return 0, err
	}
	if !off.IsInt64() || off.Int64()%WordSize != 0 {
		return 0, &entity.DecodingError{Reason: fmt.Sprintf("word %d holds an invalid offset %s", i, off)}
	}
	idx := int(off.Int64() / WordSize)
	if idx >= p.Words() {
		return 0, &entity.DecodingError{Reason: fmt.Sprintf("offset %s points past the payload end", off)}
	}
	return idx, nil
}

// ToScaledDecimal converts a raw on-chain integer into a decimal amount.
func ToScaledDecimal(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToRawInteger converts a decimal amount into its on-chain integer. Amounts
// with more fractional digits than decimals are rejected rather than rounded.
func ToRawInteger(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d fractional digits", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ToTokenAmount converts a raw integer into a TokenAmount.
func ToTokenAmount(raw *big.Int, decimals int32) entity.TokenAmount {
	return entity.NewTokenAmount(ToScaledDecimal(raw, decimals), decimals)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		return nil, &entity.DecodingError{Reason: fmt.Sprintf("odd-length hex string (%d chars)", len(s))}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, &entity.DecodingError{Reason: "invalid hex characters", Err: err}
	}
	return b, nil
}
