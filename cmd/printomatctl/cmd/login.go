package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the operator API",
	Long:  `Log in with the admin password and store the session token in the CLI config file.`,
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "admin password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := apiRequest("POST", "/api/auth/login", map[string]string{"password": password}, &resp); err != nil {
		return err
	}
	if !resp.Success || resp.Token == "" {
		return fmt.Errorf("login failed: %s", resp.Message)
	}

	path, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to locate config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("server_url", getServerURL())
	viper.Set("auth_token", resp.Token)
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Logged in, token saved to %s\n", path)
	return nil
}
