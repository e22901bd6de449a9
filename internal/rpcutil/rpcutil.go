// Package rpcutil holds the net/rpc dialing helper shared by the worker
// daemon and the client package, adapted from the teacher's
// gfs/util/util.go.
package rpcutil

import (
	"fmt"
	"net/rpc"
	"strings"

	"github.com/wikieden/tachyon/pkg/tachyon"
)

// Call dials addr, invokes rpcname and closes the connection. A server
// error whose text starts with a tachyon Kind name is returned as a
// *tachyon.Error of that Kind, so callers can branch with tachyon.Is.
func Call(addr tachyon.NetAddress, rpcname string, args, reply interface{}) error {
	c, err := rpc.Dial("tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return err
	}
	defer c.Close()

	err = c.Call(rpcname, args, reply)
	if se, ok := err.(rpc.ServerError); ok {
		for k := tachyon.FileAlreadyExist; k <= tachyon.FailedToCheckpoint; k++ {
			if prefix := k.String() + ": "; strings.HasPrefix(string(se), prefix) {
				return tachyon.NewError(k, strings.TrimPrefix(string(se), prefix))
			}
		}
	}
	return err
}
