package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teemow/slotbook/internal/credential"
)

func newAuthorizeCmd() *cobra.Command {
	var (
		code      string
		withGmail bool
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Authorize access to the owner's calendar",
		Long: `Run the OAuth handshake from a terminal instead of the /oauth/init endpoint.

The command prints the Google consent URL. Open it as the calendar owner,
approve access, and paste the code parameter of the redirect back into the
terminal (or pass it with --code). The resulting credential is written to the
configured credential store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globals.GoogleClientID == "" || globals.GoogleClientSecret == "" {
				return fmt.Errorf("--google-client-id and --google-client-secret are required")
			}
			if globals.CredentialStore == credentialStoreMemory {
				return fmt.Errorf("the memory credential store does not outlive this command, use file or redis")
			}
			return runAuthorize(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), code, withGmail)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code returned by Google (prompted for when empty)")
	cmd.Flags().BoolVar(&withGmail, "gmail", true, "Also request permission to send notification mail")

	return cmd
}

func runAuthorize(ctx context.Context, in io.Reader, out io.Writer, code string, withGmail bool) error {
	logger := globals.logger()

	store, closeStore, err := globals.openStandaloneStore()
	if err != nil {
		return err
	}
	defer closeStore()
	handshake := credential.NewHandshake(globals.oauthConfig(withGmail), store, logger)

	if code == "" {
		fmt.Fprintln(out, "Open the following URL as the calendar owner and approve access:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, handshake.AuthURL(uuid.NewString()))
		fmt.Fprintln(out)
		fmt.Fprint(out, "Authorization code: ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		return fmt.Errorf("no authorization code given")
	}

	if err := handshake.Complete(ctx, code); err != nil {
		return err
	}
	fmt.Fprintln(out, "Calendar authorized.")
	return nil
}
