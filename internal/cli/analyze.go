package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anushkaa29gupta/ByteCoders2.0/internal/backend"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/config"
	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/intake"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/orchestrator"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/render"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/service"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/validation"
)

var (
	analyzeBackend        string
	analyzeBackendTimeout time.Duration
	analyzeExpectedText   string
	analyzeTimeout        time.Duration
	analyzeFormat         string
	analyzeWidth          int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze an image file",
	Long: `Sends the image to the analysis backend's text, metadata and forensics
endpoints in parallel and prints the result cards once all three have answered.
Any failed call fails the whole analysis.

Defaults come from the same configuration as the server: BACKEND_URL and
BACKEND_TIMEOUT, optionally through the YAML file named by CONFIG_FILE.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeBackend, "backend", "b", "", "analysis backend base URL (default from BACKEND_URL)")
	analyzeCmd.Flags().DurationVar(&analyzeBackendTimeout, "backend-timeout", 0, "time limit per backend call (default from BACKEND_TIMEOUT)")
	analyzeCmd.Flags().StringVarP(&analyzeExpectedText, "expected-text", "e", "", "text the image is expected to contain")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "overall time limit for the analysis (default twice the per-call limit)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "output", "o", "cards", "output format: cards, json or msgpack")
	analyzeCmd.Flags().IntVar(&analyzeWidth, "width", 72, "card width in terminal cells")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	switch analyzeFormat {
	case "cards", service.FormatJSON, service.FormatMsgpack:
	default:
		return fmt.Errorf("unsupported output format %q", analyzeFormat)
	}

	settings, err := resolveSettings()
	if err != nil {
		return err
	}

	upload, err := intake.FromPath(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %s", apperrors.UserMessage(err))
	}
	upload.ExpectedText = analyzeExpectedText

	client := backend.NewHTTPClient(settings.backendURL,
		backend.DefaultOptions().WithTimeout(settings.callTimeout))
	orch := orchestrator.New(client, orchestrator.WithSessionID("cli"))

	ctx, cancel := context.WithTimeout(cmd.Context(), settings.timeout)
	defer cancel()

	if _, err := orch.Submit(ctx, upload); err != nil {
		return fmt.Errorf("analysis rejected: %s", apperrors.UserMessage(err))
	}

	state, err := orch.Wait(ctx)
	if err != nil {
		orch.Reset(context.Background())
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("analysis timed out after %s", settings.timeout)
		}
		return fmt.Errorf("analysis interrupted: %w", err)
	}

	switch st := state.(type) {
	case orchestrator.Complete:
		return outputAnalysis(cmd, st)
	case orchestrator.Failed:
		return fmt.Errorf("analysis failed: %s", apperrors.UserMessage(st.Err))
	default:
		return fmt.Errorf("analysis ended in unexpected state %q", state.Name())
	}
}

type analyzeSettings struct {
	backendURL  string
	callTimeout time.Duration
	timeout     time.Duration
}

// resolveSettings layers the command flags over the loaded configuration
func resolveSettings() (analyzeSettings, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return analyzeSettings{}, fmt.Errorf("failed to load config: %w", err)
	}

	s := analyzeSettings{
		backendURL:  cfg.BackendURL,
		callTimeout: cfg.BackendTimeout,
	}
	if analyzeBackend != "" {
		s.backendURL = strings.TrimRight(analyzeBackend, "/")
		if err := validation.NewURLValidator().ValidateBaseURL(s.backendURL); err != nil {
			return analyzeSettings{}, fmt.Errorf("invalid --backend %q: %s", analyzeBackend, apperrors.UserMessage(err))
		}
	}
	if analyzeBackendTimeout > 0 {
		s.callTimeout = analyzeBackendTimeout
	}
	s.timeout = 2 * s.callTimeout
	if analyzeTimeout > 0 {
		s.timeout = analyzeTimeout
	}
	return s, nil
}

func outputAnalysis(cmd *cobra.Command, st orchestrator.Complete) error {
	if analyzeFormat == "cards" {
		d := render.BuildDashboard(st.Image, st.Result, st.Verification)
		fmt.Fprintln(cmd.OutOrStdout(), render.NewTerminal(analyzeWidth).Dashboard(d))
		return nil
	}

	report, err := service.BuildReport(st, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	data, _, err := service.EncodeReport(report, analyzeFormat)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(data); err != nil {
		return err
	}
	if analyzeFormat == service.FormatJSON {
		fmt.Fprintln(out)
	}
	return nil
}
