package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const envPassword = "PARKPRO_PASSWORD"

var loginPassword string

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "The portal password, read from $"+envPassword+" or stdin if not given.")
	rootCmd.AddCommand(loginCmd)
}

func readPassword() (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if password := os.Getenv(envPassword); password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var loginCmd = &cobra.Command{
	Use:   "login [--password <password>]",
	Short: "Logs into the portal and stores the encrypted credentials for later use.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, email, err := account(cmd)
		if err != nil {
			return err
		}
		password, err := readPassword()
		if err != nil {
			return err
		}
		identity, err := svc.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader([]any{"Email", "Ticket", "Long ticket", "Article"})
		t.AppendRow([]any{identity.Email, identity.TicketID, identity.LongTicketID, identity.ArticleID})
		t.Render()
		return nil
	},
}
