package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"

	"tokend/cmd/internal/passphrase"
	"tokend/config"
	"tokend/crypto"
	"tokend/native/permit"
)

const keystorePassEnv = "TOKEND_KEYSTORE_PASS"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "address":
		err = runAddress(os.Args[2:])
	case "sign-permit":
		err = runSignPermit(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: tokend-cli <command> [flags]

Commands:
  generate      create a new keystore file
  address       print the address held in a keystore file
  sign-permit   sign a typed-data permit with a keystore key`)
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	keystorePath := fs.String("keystore", "./tokend-key.json", "Path for the new keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func runAddress(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	keystorePath := fs.String("keystore", "./tokend-key.json", "Path of the keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keystorePath)
	if err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func runSignPermit(args []string) error {
	fs := flag.NewFlagSet("sign-permit", flag.ExitOnError)
	keystorePath := fs.String("keystore", "./tokend-key.json", "Path of the holder's keystore file")
	spenderFlag := fs.String("spender", "", "Spender address (bech32)")
	valueFlag := fs.String("value", "", "Approval value (base-10)")
	nonceFlag := fs.Uint64("nonce", 0, "Holder's current permit nonce")
	deadlineFlag := fs.Int64("deadline", 0, "Unix deadline for the permit")
	nameFlag := fs.String("name", "Guarded Token", "Token name bound into the domain")
	chainFlag := fs.Uint64("chain-id", config.DefaultChainID, "Chain identifier bound into the domain")
	moduleFlag := fs.String("module", "", "Module address bound into the domain (bech32)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spender, err := crypto.DecodeAddress(*spenderFlag)
	if err != nil {
		return fmt.Errorf("spender: %w", err)
	}
	module, err := crypto.DecodeAddress(*moduleFlag)
	if err != nil {
		return fmt.Errorf("module: %w", err)
	}
	value, ok := new(big.Int).SetString(*valueFlag, 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid value %q", *valueFlag)
	}

	key, err := loadKey(*keystorePath)
	if err != nil {
		return err
	}
	holder := key.PubKey().Address()

	authorizer := permit.NewAuthorizer(*nameFlag, "1", *chainFlag, module.Raw())
	digest := authorizer.Digest(holder.Raw(), spender.Raw(), value, *nonceFlag, *deadlineFlag)
	signature, err := key.Sign(digest[:])
	if err != nil {
		return err
	}
	fmt.Println("0x" + hex.EncodeToString(signature))
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}
