package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	ET "github.com/IBM/fp-go/v2/either"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/alipay"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
	T "github.com/Qubut/IP-Claim/packages/alipay_bill/internal/typing"
)

type accountFile struct {
	Accounts []models.Account `toml:"account"`
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage Alipay accounts",
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := services.Accounts.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP ID\tNAME\tVALID\tPUBLIC KEY")
		for _, a := range accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n", a.ID, a.AppID, a.Name, a.Valid, a.RSAPublicKey != "")
		}
		return w.Flush()
	},
}

var accountImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Create or update accounts from a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := loadAccountFile(args[0])
		if err != nil {
			return err
		}
		res := importAccounts(cmd.Context(), accounts)()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("import failed: %w", err)
		}
		logger.Infow("Accounts imported", "file", args[0], "count", len(accounts))
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts\n", len(accounts))
		return nil
	},
}

var accountEnableCmd = &cobra.Command{
	Use:   "enable <app_id>",
	Short: "Include an account in downloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountValid(cmd.Context(), args[0], true)
	},
}

var accountDisableCmd = &cobra.Command{
	Use:   "disable <app_id>",
	Short: "Exclude an account from downloads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAccountValid(cmd.Context(), args[0], false)
	},
}

func setAccountValid(ctx context.Context, appID string, valid bool) error {
	if err := services.Accounts.SetValid(ctx, appID, valid); err != nil {
		return fmt.Errorf("account %s: %w", appID, err)
	}
	logger.Infow("Account updated", "app_id", appID, "valid", valid)
	return nil
}

// loadAccountFile reads [[account]] tables and checks every entry, including
// that its keys load.
func loadAccountFile(path string) ([]models.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account file: %w", err)
	}
	var file accountFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode account file %s: %w", path, err)
	}
	if len(file.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts in %s", path)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(file.Accounts))
	for i, a := range file.Accounts {
		if err := validate.Struct(a); err != nil {
			return nil, fmt.Errorf("account #%d: %w", i+1, err)
		}
		if seen[a.AppID] {
			return nil, fmt.Errorf("account #%d: duplicate app id %s", i+1, a.AppID)
		}
		seen[a.AppID] = true
		if err := alipay.CheckKeys(a); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.AppID, err)
		}
	}
	return file.Accounts, nil
}

func importAccounts(ctx context.Context, accounts []models.Account) IOE.IOEither[error, []T.Unit] {
	return IOE.TraverseArray(func(a models.Account) IOE.IOEither[error, T.Unit] {
		return IOE.TryCatchError(func() (T.Unit, error) {
			if err := services.Accounts.Save(ctx, &a); err != nil {
				return T.Unit{}, fmt.Errorf("save %s: %w", a.AppID, err)
			}
			return T.Unit{}, nil
		})
	})(accounts)
}

func init() {
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountImportCmd)
	accountCmd.AddCommand(accountEnableCmd)
	accountCmd.AddCommand(accountDisableCmd)
}
