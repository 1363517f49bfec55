// Package item handles references to the auctioned collectible: parsing,
// validation and formatting of "0x{collection}#{tokenID}" strings.
package item

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// refRegex matches: 0x{40 hex collection address}#{decimal token id}
// Example: 0x5FbDB2315678afecb367f032d93F642f64180aa3#42
var refRegex = regexp.MustCompile(`^(0x[0-9a-fA-F]{40})#([0-9]+)$`)

var (
	ErrInvalidRef        = errors.New("item: invalid collectible reference")
	ErrInvalidCollection = errors.New("item: collection address must be non-zero")
)

// Ref identifies one collectible: the registry it lives in and its token ID.
type Ref struct {
	Collection common.Address `json:"collection"`
	TokenID    uint64         `json:"token_id"`
}

// ParseRef parses and validates a collectible reference string.
// Format: 0x{collection}#{tokenID}
func ParseRef(s string) (*Ref, error) {
	matches := refRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected 0x{collection}#{token_id})", ErrInvalidRef, s)
	}

	collection := common.HexToAddress(matches[1])
	if collection == (common.Address{}) {
		return nil, ErrInvalidCollection
	}

	id, err := strconv.ParseUint(matches[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: token id %s out of range", ErrInvalidRef, matches[2])
	}

	return &Ref{Collection: collection, TokenID: id}, nil
}

// String formats the reference with a checksummed collection address.
func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Collection.Hex(), r.TokenID)
}
