package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/memowire/memowire/internal/config"
	"github.com/memowire/memowire/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "memowire",
	Short: "Memo-field messenger wallet CLI",
	Long:  `A messaging wallet that exchanges contacts and chat messages through shielded-transaction memo fields.`,
}

func init() {
	rootCmd.AddCommand(createIdentityCmd)
	rootCmd.AddCommand(importIdentityCmd)
	rootCmd.AddCommand(renameIdentityCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(revealKeyCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(requestContactCmd)
	rootCmd.AddCommand(sendMessageCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	err = viper.ReadInConfig()
	if err != nil {
		log.Printf("Error reading viper config: %s", err.Error())
	}

	baseDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("Error getting current directory: %v", err)
	}

	viper.Set("base_dir", baseDir)

	if err := logger.Init(); err != nil {
		log.Printf("Error initializing logger: %v", err)
	}
}

func main() {
	initConfig()
	defer logger.Cleanup()
	if len(os.Args) > 1 {
		// CLI mode
		if err := rootCmd.Execute(); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	} else {
		// Interactive mode
		interactiveMode()
	}
}

func interactiveMode() {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nMemowire Messenger Wallet")
		fmt.Println("1. Create a messaging identity")
		fmt.Println("2. Show my address")
		fmt.Println("3. Start the messaging engine")
		fmt.Println("4. List contacts")
		fmt.Println("5. Exit")
		fmt.Print("\nEnter your choice (1, 2, 3, 4, or 5): ")
		choice, _ := reader.ReadString('\n')
		choice = strings.TrimSpace(choice)

		switch choice {
		case "1":
			fmt.Print("Enter a username: ")
			username, _ := reader.ReadString('\n')
			if err := runCreateIdentity(strings.TrimSpace(username)); err != nil {
				log.Printf("Error creating identity: %s", err)
			}
		case "2":
			if err := runShowAddress(); err != nil {
				log.Printf("Error showing address: %s", err)
			}
		case "3":
			if err := runServe(); err != nil {
				log.Printf("Error running engine: %s", err)
			}
		case "4":
			if err := runListContacts(); err != nil {
				log.Printf("Error listing contacts: %s", err)
			}
		case "5":
			fmt.Println("Exiting program. Goodbye!")
			return
		default:
			fmt.Println("Invalid choice. Please try again.")
		}
	}
}
