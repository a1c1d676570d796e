package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var errPIIFound = errors.New("text contains PII")

// readInput joins the arguments, or reads stdin when there are none
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func newFilterCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "filter [text...]",
		Short: "Redact text from the arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg, nopLogger(), nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			result := eng.Process(cmd.Context(), text)
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), result.Text)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result with counts as JSON")
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [text...]",
		Short: "Exit non-zero if the text contains an email, phone, SSN or card number",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg, nopLogger(), nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if eng.ContainsPII(text) {
				return errPIIFound
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "no PII found")
			return err
		},
	}
}

func newSummaryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [text...]",
		Short: "Count the emails, phones, URLs and SSNs a filter pass removes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			eng, err := buildEngine(cfg, nopLogger(), nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			filtered := eng.Filter(cmd.Context(), text)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(eng.Summary(text, filtered))
		},
	}
}
