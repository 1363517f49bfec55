// Package custody provides in-process implementations of the payment asset
// and the collectible registry the auction engine moves value through.
//
// Both keep their books in memory behind a mutex. They stand in for an
// external ledger in development deployments and tests.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount         = errors.New("custody: amount must be a positive whole number")
	ErrInsufficientBalance   = errors.New("custody: insufficient balance")
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")
	ErrZeroAddress           = errors.New("custody: zero address")
)

// Token is a fungible asset with balances and spending allowances.
type Token struct {
	mu         sync.RWMutex
	symbol     string
	supply     decimal.Decimal
	balances   map[common.Address]decimal.Decimal
	allowances map[common.Address]map[common.Address]decimal.Decimal // owner -> spender -> amount
}

// NewToken creates an empty token.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		supply:     decimal.Zero,
		balances:   make(map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

func (t *Token) Symbol() string { return t.symbol }

func validAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// Mint credits amount to the holder and grows the supply.
func (t *Token) Mint(to common.Address, amount decimal.Decimal) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = t.balances[to].Add(amount)
	t.supply = t.supply.Add(amount)
	return nil
}

// Approve sets the amount spender may pull from owner, replacing any
// previous allowance. A zero amount revokes it.
func (t *Token) Approve(owner, spender common.Address, amount decimal.Decimal) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]decimal.Decimal)
		t.allowances[owner] = m
	}
	if amount.IsZero() {
		delete(m, spender)
		return nil
	}
	m[spender] = amount
	return nil
}

func (t *Token) Allowance(owner, spender common.Address) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return decimal.Zero
}

func (t *Token) BalanceOf(who common.Address) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[who]; ok {
		return b
	}
	return decimal.Zero
}

// TotalSupply is the sum of all balances.
func (t *Token) TotalSupply() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming the spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount decimal.Decimal) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[from][spender]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s approved %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowed, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if left := allowed.Sub(amount); left.IsZero() {
		delete(t.allowances[from], spender)
	} else {
		t.allowances[from][spender] = left
	}
	return nil
}

// move requires t.mu held for writing.
func (t *Token) move(from, to common.Address, amount decimal.Decimal) error {
	bal := t.balances[from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	t.balances[from] = bal.Sub(amount)
	t.balances[to] = t.balances[to].Add(amount)
	return nil
}

// Bind returns a view of the token acting as holder: Transfer sends from
// holder and TransferFrom spends holder's allowances.
func (t *Token) Bind(holder common.Address) *Account {
	return &Account{token: t, holder: holder}
}

// Account is a Token bound to one holder.
type Account struct {
	token  *Token
	holder common.Address
}

func (a *Account) Transfer(_ context.Context, to common.Address, amount decimal.Decimal) error {
	return a.token.Transfer(a.holder, to, amount)
}

func (a *Account) TransferFrom(_ context.Context, from, to common.Address, amount decimal.Decimal) error {
	return a.token.TransferFrom(a.holder, from, to, amount)
}

func (a *Account) BalanceOf(_ context.Context, who common.Address) (decimal.Decimal, error) {
	return a.token.BalanceOf(who), nil
}
