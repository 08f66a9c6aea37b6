package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgefirst-dev/jwt/claims"
	"github.com/edgefirst-dev/jwt/token"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a token with the newest signing key",
	Example: `  # Sign a token for a subject with extra claims
  jwtkeys sign --sub=user-1 --claims='{"scope":"read"}'

  # Sign and encrypt for the newest encryption key
  jwtkeys sign --sub=user-1 --seal`,
	Args: cobra.NoArgs,
	RunE: signCmdRun,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <token|->",
	Short: "Verify a token and print its claims",
	Example: `  # Verify against the stored signing keys
  jwtkeys verify "$TOKEN"

  # Verify against a remote key set, reading the token from stdin
  echo "$TOKEN" | jwtkeys verify - --jwks-url=https://auth.example/.well-known/jwks.json`,
	Args: cobra.ExactArgs(1),
	RunE: verifyCmdRun,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <token|->",
	Short: "Print the claims of a token without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE:  decodeCmdRun,
}

type signFlags struct {
	subject string
	claims  string
	ttl     time.Duration
	seal    bool
}

type verifyFlags struct {
	jwksURL string
	sealed  bool
}

var (
	signArgs   signFlags
	verifyArgs verifyFlags
)

func init() {
	signCmd.Flags().StringVar(&signArgs.subject, "sub", "",
		"Subject claim.")
	signCmd.Flags().StringVar(&signArgs.claims, "claims", "",
		"Additional claims as a JSON object.")
	signCmd.Flags().DurationVar(&signArgs.ttl, "ttl", 0,
		"Token lifetime; zero uses the configured TTL.")
	signCmd.Flags().BoolVar(&signArgs.seal, "seal", false,
		"Encrypt the signed token for the newest encryption key.")

	verifyCmd.Flags().StringVar(&verifyArgs.jwksURL, "jwks-url", "",
		"Verify against the key set published at this URL instead of the stored keys.")
	verifyCmd.Flags().BoolVar(&verifyArgs.sealed, "sealed", false,
		"The token was produced with sign --seal.")

	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(decodeCmd)
}

func signCmdRun(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	payload := map[string]any{}
	if signArgs.claims != "" {
		var err error
		payload, err = claims.DecodePayload([]byte(signArgs.claims))
		if err != nil {
			return fmt.Errorf("invalid --claims: %w", err)
		}
	}
	c := claims.New(payload)
	if signArgs.subject != "" {
		c.SetSubject(signArgs.subject)
	}
	if signArgs.ttl > 0 {
		c.SetExpiresIn(signArgs.ttl)
	}

	var (
		out string
		err error
	)
	if signArgs.seal {
		out, err = issuer.Seal(ctx, c)
	} else {
		out, err = issuer.Sign(ctx, c)
	}
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	cmd.Println(out)
	return nil
}

func verifyCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	tok, err := readToken(cmd, args[0])
	if err != nil {
		return err
	}

	var c *claims.Claims
	switch {
	case verifyArgs.sealed:
		c, err = issuer.Open(ctx, tok)
	case verifyArgs.jwksURL != "":
		c, err = issuer.VerifyRemote(ctx, tok, verifyArgs.jwksURL)
	default:
		c, err = issuer.Verify(ctx, tok)
	}
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	return printJSON(cmd, c)
}

func decodeCmdRun(cmd *cobra.Command, args []string) error {
	tok, err := readToken(cmd, args[0])
	if err != nil {
		return err
	}
	kid, err := token.KeyID(tok)
	if err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}
	c, err := issuer.Decode(tok)
	if err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}
	return printJSON(cmd, struct {
		KeyID  string         `json:"kid"`
		Claims *claims.Claims `json:"claims"`
	}{KeyID: kid, Claims: c})
}

// readToken returns arg, or the first line of stdin when arg is "-".
func readToken(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return strings.TrimSpace(arg), nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", errors.New("no token on stdin")
	}
	return tok, nil
}
