package loopback

import (
	"bytes"
	"go/format"
	"os"
	"testing"
)

func TestServerSourceIsFormatted(t *testing.T) {
	for _, name := range []string{"server.go"} {
		src, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		out, err := format.Source(src)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(src, out) {
			t.Errorf("%s is not gofmt-formatted", name)
		}
	}
}
