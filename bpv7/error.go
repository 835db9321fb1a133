// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"

	"github.com/dtn7x/bpa/internal/bpaerr"
)

// protoErrf builds a protocol-kind error, the taxonomy bucket malformed
// CBOR, bad CRC and block-flag violations belong to (spec §7).
func protoErrf(format string, args ...interface{}) error {
	return bpaerr.New(bpaerr.KindProtocol, "bpv7", fmt.Errorf(format, args...))
}
