// SPDX-License-Identifier: GPL-3.0-or-later

package dnswire_test

import (
	"fmt"

	"github.com/bassosimone/runtimex"
	"github.com/polymorfiq/dns-server/internal/dnswire"
)

func Example_encodeAndDecode() {
	query := runtimex.PanicOnError1(dnswire.NewQuery("www.example.com", dnswire.TypeA))
	query.Header.ID = 37 // deterministic output; in production keep the random ID

	raw := runtimex.PanicOnError1(query.Encode())
	decoded := runtimex.PanicOnError1(dnswire.Decode(raw))

	q0 := decoded.Questions[0]
	fmt.Printf("%d bytes, id=%d, %s %s %s\n",
		len(raw), decoded.Header.ID, q0.Name, q0.Class, q0.Type)

	// Output:
	// 33 bytes, id=37, www.example.com IN A
}
