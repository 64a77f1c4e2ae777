package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"golang.org/x/term"
)

// promptPassphrase reads a passphrase without echo. When confirm is set the
// passphrase is read twice and must match.
func promptPassphrase(confirm bool) (string, error) {
	passphrase, err := promptSecret("Enter wallet passphrase: ")
	if err != nil {
		return "", err
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase cannot be empty")
	}

	if confirm {
		again, err := promptSecret("Confirm wallet passphrase: ")
		if err != nil {
			return "", err
		}
		if passphrase != again {
			return "", fmt.Errorf("passphrases do not match")
		}
	}

	return passphrase, nil
}

// promptSecret reads a line without echoing it when stdin is a terminal, and
// falls back to a plain read otherwise (pipes, tests).
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// printAndCopyAddress shows the identity address and puts it on the system
// clipboard so it can be pasted into a contact request.
func printAndCopyAddress(address string) {
	fmt.Println("Your messaging address:")
	fmt.Println(address)

	if err := clipboard.WriteAll(address); err != nil {
		fmt.Println("(could not copy to clipboard)")
		return
	}
	fmt.Println("Address copied to clipboard.")
}
