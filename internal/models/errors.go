package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration        = errors.New("configuration error")
	ErrCredentialsMissing   = errors.New("credentials missing")
	ErrNoPositionToClose    = errors.New("no position to close")
	ErrBelowMinimumNotional = errors.New("below minimum notional")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrUnsupportedAction    = errors.New("unsupported action")
	ErrOrderRejected        = errors.New("order rejected")
	ErrLeverageChangeFailed = errors.New("leverage change failed")
	ErrDecisionService      = errors.New("decision service failure")
	ErrAccountNotFound      = errors.New("account not found")
)

// TradeError 携带出错的交易对和步骤，支持 errors.Is/As
type TradeError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *TradeError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("trade %s [%s]: %v", e.Symbol, e.Op, e.Err)
	}
	return fmt.Sprintf("trade [%s]: %v", e.Op, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError 创建一个新的 TradeError
func NewTradeError(symbol, op string, err error) *TradeError {
	return &TradeError{Symbol: symbol, Op: op, Err: err}
}
