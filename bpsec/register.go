// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import "github.com/dtn7x/bpa/bpv7"

func init() {
	_ = bpv7.GetExtensionBlockManager().Register(&BIBHMACSHA2{})
	_ = bpv7.GetExtensionBlockManager().Register(&BCBAESGCM{})
}
