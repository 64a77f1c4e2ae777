package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/memowire/memowire/internal/api"
	"github.com/memowire/memowire/internal/daemon"
	walletdb "github.com/memowire/memowire/internal/database"
	"github.com/memowire/memowire/internal/ipc"
	"github.com/memowire/memowire/internal/wallet"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var createIdentityCmd = &cobra.Command{
	Use:   "create [username]",
	Short: "Create a messaging identity (new shielded address)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreateIdentity(args[0])
	},
}

var importIdentityCmd = &cobra.Command{
	Use:   "import [username] [address]",
	Short: "Restore an identity from its shielded address and spending key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}

		key, err := promptSecret("Enter the spending key for " + args[1] + ": ")
		if err != nil {
			return err
		}

		engine, store, err := buildEngine(passphrase, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		restored, err := engine.Identity.Restore(context.Background(), args[0], args[1], key)
		if err != nil {
			return err
		}

		fmt.Printf("Identity %q restored with address %s\n", restored.Username, restored.Address)
		return nil
	},
}

var renameIdentityCmd = &cobra.Command{
	Use:   "rename [username]",
	Short: "Change the identity's display name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, store, err := buildEngine("", nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := engine.Identity.Rename(args[0]); err != nil {
			return err
		}

		fmt.Printf("Identity renamed to %q\n", args[0])
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the identity address and copy it to the clipboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowAddress()
	},
}

var revealKeyCmd = &cobra.Command{
	Use:   "reveal-key",
	Short: "Decrypt and display the identity's spending key",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := promptPassphrase(false)
		if err != nil {
			return err
		}

		engine, store, err := buildEngine(passphrase, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		current, err := engine.Identity.Current()
		if err != nil {
			return err
		}

		keys := &wallet.FileKeyStore{Dir: viper.GetString("wallet_dir"), Passphrase: passphrase}
		key, err := keys.LoadKey(current.Address)
		if err != nil {
			return err
		}

		fmt.Println("Spending key (keep this secret):")
		fmt.Println(key)
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List confirmed contacts and pending requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListContacts()
	},
}

var requestContactCmd = &cobra.Command{
	Use:   "request [address]",
	Short: "Send a contact request to a shielded address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, store, err := buildEngine("", nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := engine.Handshake.SendRequest(context.Background(), args[0]); err != nil {
			return err
		}

		fmt.Println("Contact request sent. The contact appears once the peer confirms.")
		return nil
	},
}

var sendMessageCmd = &cobra.Command{
	Use:   "send [peer-token] [text]",
	Short: "Send a message to a confirmed contact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gift, err := cmd.Flags().GetFloat64("gift")
		if err != nil {
			return err
		}

		engine, store, err := buildEngine("", nil)
		if err != nil {
			return err
		}
		defer store.Close()

		message, err := engine.Transport.Send(context.Background(), args[0], args[1], gift)
		if err != nil {
			return err
		}

		fmt.Printf("Message sent at timestamp %d\n", message.Timestamp)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the identity address balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, store, err := buildEngine("", nil)
		if err != nil {
			return err
		}
		defer store.Close()

		current, err := engine.Identity.Current()
		if err != nil {
			return err
		}

		balance, err := engine.RPC.Balance(context.Background(), current.Address, viper.GetInt("min_conf"))
		if err != nil {
			return err
		}

		fmt.Printf("Address: %s\nBalance: %.8f\n", current.Address, balance)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the messaging engine, HTTP API and notification socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	sendMessageCmd.Flags().Float64("gift", 0, "extra coins to attach on top of the dust amount")
}

// buildEngine opens the store and daemon client and wires the engine. The
// caller owns the returned store.
func buildEngine(passphrase string, notifier wallet.Notifier) (*wallet.Engine, *walletdb.Store, error) {
	store, err := walletdb.Open(viper.GetString("wallet_db_path"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening message store: %w", err)
	}

	rpc := daemon.NewClient(
		viper.GetString("rpc_url"),
		viper.GetString("rpc_user"),
		viper.GetString("rpc_password"),
	)

	keys := &wallet.FileKeyStore{
		Dir:        viper.GetString("wallet_dir"),
		Passphrase: passphrase,
	}

	return wallet.NewEngine(store, rpc, keys, notifier), store, nil
}

func runCreateIdentity(username string) error {
	passphrase, err := promptPassphrase(true)
	if err != nil {
		return err
	}

	engine, store, err := buildEngine(passphrase, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := engine.Identity.Create(context.Background(), username)
	if err != nil {
		return err
	}

	fmt.Printf("Identity %q created.\nAddress: %s\n", created.Username, created.Address)
	fmt.Println("The spending key is stored encrypted in the wallet directory.")
	return nil
}

func runShowAddress() error {
	engine, store, err := buildEngine("", nil)
	if err != nil {
		return err
	}
	defer store.Close()

	current, err := engine.Identity.Current()
	if err != nil {
		return err
	}

	printAndCopyAddress(current.Address)
	return nil
}

func runListContacts() error {
	engine, store, err := buildEngine("", nil)
	if err != nil {
		return err
	}
	defer store.Close()

	return printContacts(engine)
}

func printContacts(engine *wallet.Engine) error {
	list, err := engine.Contacts.List()
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No confirmed contacts.")
	} else {
		fmt.Println("Contacts:")
		for _, c := range list {
			fmt.Printf("  %s  token=%s  %s\n", c.Username, c.PeerToken, c.Address)
		}
	}

	pending, err := engine.Contacts.Pending()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		fmt.Println("Pending requests:")
		for _, p := range pending {
			fmt.Printf("  #%d  %s  %s\n", p.ID, p.PeerUsername, p.PeerAddress)
		}
	}

	return nil
}

// runServe wires the full stack: notification socket, engine poll loop and
// HTTP API, all bound to one signal-cancelled context.
func runServe() error {
	notifier, err := ipc.NewServer()
	if err != nil {
		return fmt.Errorf("starting notification socket: %w", err)
	}
	defer notifier.Close()

	engine, store, err := buildEngine("", notifier)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.NewAPI(engine, !viper.GetBool("use_https")))

	errCh := make(chan error, 2)
	go func() { errCh <- engine.Run(ctx) }()
	go func() { errCh <- server.Run(ctx) }()

	select {
	case <-ctx.Done():
		logrus.Info("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
