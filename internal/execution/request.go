package execution

import (
	"github.com/mangrovedao/vault-console/internal/chain"
)

// CallRequest packs call into a request. The simulated result of the
// executed request can be decoded with call.Unpack.
func CallRequest(intent, description string, call chain.Call) (Request, error) {
	data, err := call.Pack()
	if err != nil {
		return Request{}, err
	}
	return Request{Intent: intent, Description: description, To: call.Target, Data: data}, nil
}
