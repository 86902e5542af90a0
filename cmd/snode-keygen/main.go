// snode-keygen creates and inspects encrypted service node key files.
//
// Usage:
//
//	snode-keygen generate [--network=...] [--out=...] [--account=N]
//	snode-keygen restore  [--network=...] [--out=...] [--account=N]
//	snode-keygen show     --keyfile=... [--decrypt]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "generate":
		cmdCreate(args, false)
	case "restore":
		cmdCreate(args, true)
	case "show":
		cmdShow(args)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`snode-keygen - Klingnet service node key tool

Usage:
  snode-keygen generate [options]   Create a new mnemonic and key file
  snode-keygen restore [options]    Rebuild a key file from an existing mnemonic
  snode-keygen show --keyfile=PATH  Print the public keys of a key file

Options (generate, restore):
  --network     mainnet (default), testnet or fakechain
  --datadir     Data directory (default: ~/.klingnet-snode)
  --out         Key file path (default: <datadir>/<network>/keystore/snode.key)
  --account     BIP-32 account index (default: 0)
  --passphrase  Prompt for an optional BIP-39 passphrase

Options (show):
  --keyfile     Key file path
  --decrypt     Ask for the password and verify the stored keys
`)
}

func cmdCreate(args []string, restore bool) {
	name := "generate"
	if restore {
		name = "restore"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	network := fs.String("network", string(config.Mainnet), "Network type")
	dataDir := fs.String("datadir", "", "Data directory")
	out := fs.String("out", "", "Key file path")
	account := fs.Uint("account", 0, "BIP-32 account index")
	askPassphrase := fs.Bool("passphrase", false, "Prompt for a BIP-39 passphrase")
	fs.Parse(args)

	nt := config.NetworkType(strings.ToLower(*network))
	if _, err := config.ProtocolFor(nt); err != nil {
		fatal("%v", err)
	}
	path := *out
	if path == "" {
		cfg := config.Default(nt)
		if *dataDir != "" {
			cfg.DataDir = *dataDir
		}
		path = filepath.Join(cfg.KeystoreDir(), "snode.key")
	}

	var mnemonic string
	if restore {
		m, err := readMnemonic()
		if err != nil {
			fatal("read mnemonic: %v", err)
		}
		mnemonic = m
	} else {
		m, err := wallet.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		mnemonic = m
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	}

	var passphrase string
	if *askPassphrase {
		p, err := readPassword("BIP-39 passphrase: ")
		if err != nil {
			fatal("read passphrase: %v", err)
		}
		passphrase = string(p)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, passphrase)
	if errors.Is(err, wallet.ErrInvalidMnemonic) {
		fatal("invalid mnemonic: check the words and their order")
	}
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer zero(seed)

	password, err := readNewPassword()
	if err != nil {
		fatal("%v", err)
	}
	defer zero(password)

	keys, err := wallet.WriteKeyFile(path, string(nt), seed, uint32(*account), password, wallet.DefaultParams())
	if err != nil {
		fatal("%v", err)
	}
	defer keys.Zero()

	fmt.Printf("\nKey file written: %s\n", path)
	printKeys(string(nt), keys.Account, keys.SpendPublicKey.String(), keys.ViewPublicKey.String())
	fmt.Printf("\nStart the daemon with --sn-keyfile=%s\n", path)
}

func cmdShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := fs.String("keyfile", "", "Key file path")
	decrypt := fs.Bool("decrypt", false, "Verify the key file password")
	fs.Parse(args)

	if *path == "" {
		fatal("Usage: snode-keygen show --keyfile=PATH [--decrypt]")
	}

	if !*decrypt {
		info, err := wallet.ReadKeyFileInfo(*path)
		if err != nil {
			fatal("%v", err)
		}
		printKeys(info.Network, info.Account, info.SpendPublicKey.String(), info.ViewPublicKey.String())
		fmt.Printf("Created:       %s\n", info.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		return
	}

	password, err := readPassword("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	defer zero(password)
	keys, info, err := wallet.ReadKeyFile(*path, password)
	if err != nil {
		fatal("%v", err)
	}
	defer keys.Zero()
	printKeys(info.Network, info.Account, keys.SpendPublicKey.String(), keys.ViewPublicKey.String())
	fmt.Println("Password OK, stored keys match the encrypted seed.")
}

func printKeys(network string, account uint32, spend, view string) {
	fmt.Printf("Network:       %s\n", network)
	fmt.Printf("Account:       %d\n", account)
	fmt.Printf("Spend pubkey:  %s\n", spend)
	fmt.Printf("View pubkey:   %s\n", view)
}

// readMnemonic reads a phrase from the terminal without echo, or from
// stdin when it is not a terminal.
func readMnemonic() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		m, err := readPassword("Mnemonic: ")
		if err != nil {
			return "", err
		}
		return string(m), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer zero(confirm)
	if string(password) != string(confirm) {
		zero(password)
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
