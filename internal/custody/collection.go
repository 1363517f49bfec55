package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTokenExists  = errors.New("custody: token already minted")
	ErrUnknownToken = errors.New("custody: unknown token")
	ErrNotOwner     = errors.New("custody: not the token owner")
)

// Collection is a registry of uniquely identified, non-fungible items.
type Collection struct {
	mu      sync.RWMutex
	address common.Address
	owners  map[uint64]common.Address
}

// NewCollection creates an empty registry identified by address.
func NewCollection(address common.Address) *Collection {
	return &Collection{
		address: address,
		owners:  make(map[uint64]common.Address),
	}
}

func (c *Collection) Address() common.Address { return c.address }

func (c *Collection) Mint(tokenID uint64, to common.Address) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[tokenID]; ok {
		return fmt.Errorf("%w: %d", ErrTokenExists, tokenID)
	}
	c.owners[tokenID] = to
	return nil
}

func (c *Collection) OwnerOf(tokenID uint64) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownToken, tokenID)
	}
	return owner, nil
}

// Transfer moves tokenID from its current owner to to. from must own it.
func (c *Collection) Transfer(from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, tokenID)
	}
	if owner != from {
		return fmt.Errorf("%w: %d is held by %s", ErrNotOwner, tokenID, owner.Hex())
	}
	c.owners[tokenID] = to
	return nil
}

// Bind returns a view of the collection acting as holder.
func (c *Collection) Bind(holder common.Address) *Vault {
	return &Vault{coll: c, holder: holder}
}

// Vault is a Collection bound to one holder.
type Vault struct {
	coll   *Collection
	holder common.Address
}

func (v *Vault) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	return v.coll.OwnerOf(tokenID)
}

func (v *Vault) TransferItem(_ context.Context, tokenID uint64, to common.Address) error {
	return v.coll.Transfer(v.holder, to, tokenID)
}
