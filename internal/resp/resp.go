// Package resp encodes and decodes values in the RESP2 wire format
package resp

import "errors"

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// maxBulkLen bounds the length header of a bulk string
const maxBulkLen = 512 << 20

var (
	ErrInvalidEnding  = errors.New("invalid line ending")
	ErrUnexpectedType = errors.New("unexpected type")
	ErrInvalidLength  = errors.New("invalid length")
)
