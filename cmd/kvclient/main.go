// Command kvclient sends a single request to a KV server and prints the
// result, exercising internal/client's line and RPC surfaces. CLI
// ergonomics are out of scope per spec.md §1 (no REPL, no scripting); this
// is a thin one-shot wrapper.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lutongjia9090/tinykv/internal/client"
	"github.com/lutongjia9090/tinykv/internal/kv"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: kvclient -addr host:port -proto line|rpc <verb> [args...]

verbs: GET key | PUT key value | DEL key
       MGET key... | MPUT key value... | MDEL key...
`)
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "server address")
	proto := flag.String("proto", "line", "wire protocol: line or rpc")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	verb := strings.ToUpper(args[0])
	rest := args[1:]

	ok, out := run(*proto, *addr, verb, rest)
	fmt.Println(out)
	if !ok {
		os.Exit(1)
	}
}

func run(proto, addr, verb string, args []string) (bool, string) {
	switch proto {
	case "line":
		return runLine(addr, verb, args)
	case "rpc":
		return runRPC(addr, verb, args)
	default:
		return false, fmt.Sprintf("unknown protocol %q", proto)
	}
}

func runLine(addr, verb string, args []string) (bool, string) {
	c := client.NewLineClient(addr)
	defer c.Disconnect()

	switch verb {
	case "GET":
		if len(args) != 1 {
			return false, "GET requires exactly one key"
		}
		ok, v := c.Get(args[0])
		if !ok {
			return false, failMessage(c.LastError())
		}
		return true, v
	case "PUT":
		if len(args) != 2 {
			return false, "PUT requires a key and a value"
		}
		if !c.Put(args[0], args[1]) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "DEL":
		if len(args) != 1 {
			return false, "DEL requires exactly one key"
		}
		if !c.Delete(args[0]) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "MGET":
		got, ok := c.MultiGet(args)
		if !ok {
			return false, failMessage(c.LastError())
		}
		return true, formatPairs(args, got)
	case "MPUT":
		if len(args)%2 != 0 {
			return false, "MPUT requires key/value pairs"
		}
		kvs := make(map[string]string, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			kvs[args[i]] = args[i+1]
		}
		if !c.MultiPut(kvs) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "MDEL":
		if !c.MultiDelete(args) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	default:
		return false, fmt.Sprintf("unknown verb %q", verb)
	}
}

func runRPC(addr, verb string, args []string) (bool, string) {
	c := client.NewRPCClient(addr)
	defer c.Disconnect()

	switch verb {
	case "GET":
		if len(args) != 1 {
			return false, "GET requires exactly one key"
		}
		ok, v := c.Get(args[0])
		if !ok {
			return false, failMessage(c.LastError())
		}
		return true, v
	case "PUT":
		if len(args) != 2 {
			return false, "PUT requires a key and a value"
		}
		if !c.Put(args[0], args[1]) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "DEL":
		if len(args) != 1 {
			return false, "DEL requires exactly one key"
		}
		if !c.Delete(args[0]) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "MGET":
		kvs, ok := c.MultiGet(args)
		if !ok {
			return false, failMessage(c.LastError())
		}
		parts := make([]string, len(kvs))
		for i, p := range kvs {
			parts[i] = p.Key + "=" + p.Value
		}
		return true, strings.Join(parts, " ")
	case "MPUT":
		if len(args)%2 != 0 {
			return false, "MPUT requires key/value pairs"
		}
		kvs := make([]kv.Pair, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			kvs = append(kvs, kv.Pair{Key: args[i], Value: args[i+1]})
		}
		if !c.MultiPut(kvs) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	case "MDEL":
		if !c.MultiDelete(args) {
			return false, failMessage(c.LastError())
		}
		return true, "OK"
	default:
		return false, fmt.Sprintf("unknown verb %q", verb)
	}
}

func failMessage(lastErr string) string {
	if lastErr == "" {
		return "FAIL"
	}
	return "FAIL " + lastErr
}

func formatPairs(keys []string, values map[string]string) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values[k])
	}
	return strings.Join(parts, " ")
}
