package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// HS256 key should be at least as long as the hash output
const minSecretKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

// Print random hex encoded key suitable for SECRET_KEY
func run(args []string, w io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "n", minSecretKeyBytesLen, "Key length in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *size < minSecretKeyBytesLen {
		return fmt.Errorf("key must be at least %d bytes", minSecretKeyBytesLen)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		return errors.Join(errors.New("random source failed"), err)
	}

	_, err := fmt.Fprintln(w, hex.EncodeToString(b))
	return err
}
