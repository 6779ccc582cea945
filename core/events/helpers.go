package events

import (
	"math/big"
	"strconv"

	"tokend/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func addrString(addr [20]byte) string {
	return crypto.MustNewAddress(addr[:]).String()
}
