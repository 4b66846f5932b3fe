package main

import (
	"fmt"

	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/spf13/cobra"
)

type KeygenCommand struct {
	KeyDir string
	Bits   int
	Force  bool
}

func NewKeygenCommand() *cobra.Command {
	keygenCmd := &KeygenCommand{}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the signature key pair used for machine authentication",
		Args:  cobra.NoArgs,
		RunE:  keygenCmd.run,
	}

	cmd.Flags().StringVar(&keygenCmd.KeyDir, "key-dir", "./keys", "directory to write the key pair to")
	cmd.Flags().IntVar(&keygenCmd.Bits, "bits", signature.DefaultKeyBits, "RSA key size")
	cmd.Flags().BoolVar(&keygenCmd.Force, "force", false, "overwrite an existing key pair")

	return cmd
}

func (k *KeygenCommand) run(cmd *cobra.Command, args []string) error {
	if !k.Force {
		if _, err := signature.LoadKeyPair(k.KeyDir); err == nil {
			return fmt.Errorf("key pair already exists in %s (use --force to replace it)", k.KeyDir)
		}
	}

	pair, err := signature.GenerateKeyPair(k.Bits)
	if err != nil {
		return err
	}
	if err := signature.SaveKeyPair(k.KeyDir, pair); err != nil {
		return err
	}

	publicKey, err := signature.PublicKeyPEM(pair.Public)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key pair written to %s\n", k.KeyDir)
	fmt.Fprintln(out, publicKey)
	return nil
}
