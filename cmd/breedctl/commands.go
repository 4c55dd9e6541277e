package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
	"breedstudio/internal/infra"
	"breedstudio/internal/infra/credentials"
	"breedstudio/internal/providers/colors"
	"breedstudio/internal/workflow"
)

// deps are the collaborators the commands are built from.
type deps struct {
	loadConfig  func() (*infra.Config, error)
	newLogger   func(appEnv string) zerolog.Logger
	newResolver func(cfg *infra.Config, defaultKey func() string) workflow.ColorResolver
	stdout      io.Writer
}

func defaultDeps() deps {
	return deps{
		loadConfig: infra.LoadConfig,
		newLogger:  func(string) zerolog.Logger { return infra.NewLogger("cli") },
		newResolver: func(cfg *infra.Config, defaultKey func() string) workflow.ColorResolver {
			completer := colors.NewOpenAIClient(colors.OpenAIOptions{
				Model:        cfg.OpenAIChatModel,
				BaseURL:      cfg.OpenAIBaseURL,
				Organization: cfg.OpenAIOrg,
			})
			return colors.NewResolver(completer, colors.ResolverOptions{DefaultKey: defaultKey, CacheTTL: cfg.ColorCacheTTL})
		},
		stdout: os.Stdout,
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "breedctl",
		Short:         "Manage breed color manifests and credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(d.stdout)
	root.AddCommand(newKeyCmd(d), newColorsCmd(d))
	return root
}

func newKeyCmd(d deps) *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage the default OpenAI API key",
	}

	var value string
	set := &cobra.Command{
		Use:   "set",
		Short: "Persist the API key to the env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(value) == "" {
				value = os.Getenv(credentials.EnvOpenAIAPIKey)
			}
			store := credentials.NewStore(cfg.EnvFile)
			if err := store.SetOpenAIAPIKey(cmd.Context(), value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key saved to %s\n", store.Path())
			return nil
		},
	}
	set.Flags().StringVar(&value, "key", "", "API key (falls back to OPENAI_API_KEY)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether a default API key is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			store := credentials.NewStore(cfg.EnvFile)
			if store.HasOpenAIAPIKey(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "configured")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "missing")
			return nil
		},
	}

	key.AddCommand(set, status)
	return key
}

func newColorsCmd(d deps) *cobra.Command {
	var (
		manifestPath string
		animalType   string
		outPath      string
		prompt       string
	)
	cmd := &cobra.Command{
		Use:   "colors",
		Short: "Resolve missing colors for a manifest and write the completed manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			logger := d.newLogger(cfg.AppEnv)
			text, err := readManifest(cmd, manifestPath)
			if err != nil {
				return err
			}

			creds := credentials.NewStore(cfg.EnvFile)
			defaultKey := func() string {
				key, _ := creds.OpenAIAPIKey(cmd.Context())
				return key
			}
			manager := workflow.NewManager(workflow.Deps{
				Resolver:   d.newResolver(cfg, defaultKey),
				Logger:     logger,
				DefaultKey: defaultKey,
			})
			session, err := manager.Create(cmd.Context(), workflow.CreateOptions{
				Settings: workflow.Settings{
					AnimalType: animalType,
					Templates:  imagegen.Templates{Colors: prompt},
				},
				Manifest: text,
			})
			if err != nil {
				return err
			}
			summary, err := session.ResolveColors(cmd.Context())
			if err != nil {
				return err
			}
			for breed, reason := range summary.Failed {
				logger.Warn().Str("breed", breed).Str("reason", reason).Msg("colors unresolved")
			}

			out := session.ExportManifest()
			if outPath == "-" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			}
			if outPath == "" {
				outPath = domain.ManifestFileName(session.AnimalType())
			}
			if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d, failed %d, wrote %s\n", len(summary.Resolved), len(summary.Failed), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file ('-' reads stdin)")
	cmd.Flags().StringVarP(&animalType, "animal", "a", domain.DefaultAnimalType, "animal type shared by every breed")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file ('-' writes stdout, default <animal>_breeds_with_colors.txt)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "custom colors prompt with {animalType} and {breedName}")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func readManifest(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("manifest is empty")
	}
	return string(data), nil
}
