package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devmarvs/tokenauth/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate and digest authentication tokens",
	}
	cmd.AddCommand(tokenGenerateCmd(), tokenDigestCmd())
	return cmd
}

func tokenGenerateCmd() *cobra.Command {
	var (
		count  int
		digest bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate friendly random tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return errors.New("count must be at least 1")
			}
			for i := 0; i < count; i++ {
				tok, err := token.Generate()
				if err != nil {
					return err
				}
				if !digest {
					fmt.Fprintln(cmd.OutOrStdout(), tok)
					continue
				}
				hashed, err := token.Digest(tok)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tok, hashed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of tokens")
	cmd.Flags().BoolVar(&digest, "digest", false, "also print the bcrypt digest to store")
	return cmd
}

func tokenDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest [token]",
		Short: "Print the bcrypt digest of a token, read from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tok string
			if len(args) == 1 {
				tok = args[0]
			} else {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					tok = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}

			hashed, err := token.Digest(strings.TrimSpace(tok))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
}
