package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	tokenName    string
	tokenMessage string
	tokenSecret  string
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage friend tokens",
	Long:  `Commands for listing, adding, and removing the priority credentials handed out to friends.`,
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all friend tokens",
	RunE:  runTokensList,
}

var tokensAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a friend token",
	Long:  `Create a priority credential. A random secret is generated unless --token is given.`,
	RunE:  runTokensAdd,
}

var tokensRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a friend token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokensRemove,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensAddCmd)
	tokensCmd.AddCommand(tokensRemoveCmd)

	tokensAddCmd.Flags().StringVar(&tokenName, "name", "", "display name printed on receipts")
	tokensAddCmd.Flags().StringVar(&tokenMessage, "message", "", "acknowledgment message shown to the submitter")
	tokensAddCmd.Flags().StringVar(&tokenSecret, "token", "", "explicit secret (generated when omitted)")
	tokensAddCmd.MarkFlagRequired("name")
	tokensAddCmd.MarkFlagRequired("message")
}

type friendTokenInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

func runTokensList(cmd *cobra.Command, args []string) error {
	var result struct {
		Tokens []friendTokenInfo `json:"tokens"`
	}
	if err := apiRequest("GET", "/api/tokens", nil, &result); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(result)
	}

	if len(result.Tokens) == 0 {
		fmt.Println("No friend tokens configured")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Label", "Name", "Secret", "Message")
	for _, t := range result.Tokens {
		table.Append(t.Label, t.Name, t.Token, t.Message)
	}
	table.Render()
	return nil
}

func runTokensAdd(cmd *cobra.Command, args []string) error {
	payload := map[string]string{
		"name":    tokenName,
		"message": tokenMessage,
	}
	if tokenSecret != "" {
		payload["token"] = tokenSecret
	}

	var created friendTokenInfo
	if err := apiRequest("POST", "/api/tokens", payload, &created); err != nil {
		return err
	}

	if isJSONOutput() {
		return printJSON(created)
	}
	fmt.Printf("Token %q created, secret: %s\n", created.Label, created.Token)
	return nil
}

func runTokensRemove(cmd *cobra.Command, args []string) error {
	label := args[0]
	if err := apiRequest("DELETE", "/api/tokens/"+label, nil, nil); err != nil {
		return err
	}
	fmt.Printf("Token %q removed\n", label)
	return nil
}
