// Package main is the entry point for zapctl, the operator tool for
// credential hashes, signing keys and tokens.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/zappro/internal/buildinfo"
	"github.com/dmitrijs2005/zappro/internal/cryptox"
	"github.com/dmitrijs2005/zappro/internal/filex"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultKeyBits = 2048

var errPasswordMismatch = errors.New("password does not match")

// Terminal seams, replaced in tests.
var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "zapctl",
		Short:         "Operator tool for the ZapPro API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newHashPasswordCmd(),
		newVerifyPasswordCmd(),
		newGenKeysCmd(),
		newIssueTokenCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin or the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasher, err := hasherFromFlags(cmd)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().StringP("algorithm", "a", cryptox.AlgPBKDF2SHA256, "Hash algorithm (pbkdf2_sha256, argon2id)")
	cmd.Flags().IntP("iterations", "i", cryptox.DefaultIterations, "PBKDF2 iterations")
	return cmd
}

func newVerifyPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-password HASH",
		Short: "Check a password against a stored hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := cryptox.NewHasher()
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			if !hasher.Verify(password, args[0]) {
				return errPasswordMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			if hasher.NeedsRehash(args[0]) {
				fmt.Fprintln(cmd.ErrOrStderr(), "note: hash uses outdated parameters and will be upgraded on next login")
			}
			return nil
		},
	}
	return cmd
}

func newGenKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen-keys",
		Short: "Generate an RSA signing key pair as PEM files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bits, _ := cmd.Flags().GetInt("bits")
			privatePath, _ := cmd.Flags().GetString("private")
			publicPath, _ := cmd.Flags().GetString("public")
			force, _ := cmd.Flags().GetBool("force")

			pair, err := auth.GenerateKeyPair(bits)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			privPEM, err := auth.MarshalPrivateKeyPEM(pair.Private)
			if err != nil {
				return err
			}
			pubPEM, err := auth.MarshalPublicKeyPEM(pair.Public)
			if err != nil {
				return err
			}

			if err := filex.WriteFile(privatePath, privPEM, 0o600, force); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := filex.WriteFile(publicPath, pubPEM, 0o644, force); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privatePath, publicPath)
			return nil
		},
	}

	cmd.Flags().Int("bits", defaultKeyBits, "RSA key size")
	cmd.Flags().String("private", "jwt_private.pem", "Output path of the private key")
	cmd.Flags().String("public", "jwt_public.pem", "Output path of the public key")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing key files")
	return cmd
}

func newIssueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token SUBJECT",
		Short: "Sign an access or refresh token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath, _ := cmd.Flags().GetString("key")
			kind, _ := cmd.Flags().GetString("kind")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			keys := auth.NewKeyProvider(auth.KeyConfig{
				PrivateKeyPath:    keyPath,
				RequireConfigured: true,
			}, logging.Nop{})
			tokens := auth.NewService(keys, auth.Config{}, logging.Nop{})

			if ttl <= 0 {
				ttl = tokens.AccessTTL()
				if auth.Kind(kind) == auth.KindRefresh {
					ttl = tokens.RefreshTTL()
				}
			}

			token, err := tokens.Issue(args[0], auth.Kind(kind), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringP("key", "k", "", "Path of the PEM private key")
	cmd.Flags().String("kind", string(auth.KindAccess), "Token kind (access, refresh)")
	cmd.Flags().Duration("ttl", 0, "Token lifetime; defaults to the kind's standard lifetime")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}

func hasherFromFlags(cmd *cobra.Command) (*cryptox.Hasher, error) {
	alg, err := cmd.Flags().GetString("algorithm")
	if err != nil {
		return nil, fmt.Errorf("failed to get algorithm flag: %w", err)
	}
	iterations, err := cmd.Flags().GetInt("iterations")
	if err != nil {
		return nil, fmt.Errorf("failed to get iterations flag: %w", err)
	}
	return cryptox.NewHasher(cryptox.WithAlgorithm(alg), cryptox.WithIterations(iterations))
}

// readSecret prompts without echo when stdin is a terminal and otherwise
// reads the first line of input.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
