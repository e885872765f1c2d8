package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scenetag/scenetag/classify"
	"github.com/scenetag/scenetag/config"
	"github.com/scenetag/scenetag/prompt"
	"github.com/scenetag/scenetag/scene"
	"github.com/scenetag/scenetag/tui"
	"github.com/scenetag/scenetag/vlm"
	"github.com/scenetag/scenetag/vlm/dashscope"
	"github.com/scenetag/scenetag/vlm/ollama"
	"github.com/scenetag/scenetag/vlm/openai"
)

var (
	// Flags
	backend    string
	model      string
	promptFile string
	workers    int
	jsonOut    bool
	verbose    bool

	// Root command
	rootCmd = &cobra.Command{
		Use:   "scenetag",
		Short: "Classify dashcam frames with vision-language models",
		Long:  "Scenetag sends a dashcam image to a vision-language model (local or cloud) and returns a strict-JSON driving scene classification",
	}

	// Analyze command
	analyzeCmd = &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Classify one or more dashcam images",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}

	// Models command
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List models available on the selected backend",
		RunE:  runModels,
	}

	// Config command
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	setDefaultsCmd = &cobra.Command{
		Use:   "set-defaults <backend> <model>",
		Short: "Persist the default backend and model",
		Args:  cobra.ExactArgs(2),
		RunE:  runSetDefaults,
	}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	yesStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	pathStyle   = lipgloss.NewStyle().Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "VLM backend (dashscope, openai, ollama)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Analyze flags
	analyzeCmd.Flags().StringVar(&promptFile, "prompt-file", "", "Instruction prompt file (overrides the built-in prompt)")
	analyzeCmd.Flags().IntVar(&workers, "workers", 2, "Concurrent requests when classifying several images")
	analyzeCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON results")

	// Add subcommands
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(setDefaultsCmd)

	// Bind flags to viper
	viper.BindPFlags(rootCmd.PersistentFlags())
	viper.SetEnvPrefix("SCENETAG")
	viper.AutomaticEnv()
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveSelection fills backend and model from flags, environment
// and the persisted config, in that order.
func resolveSelection() *config.Manager {
	configManager, err := config.NewManager()
	if err != nil {
		configManager = nil
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: config unavailable: %v\n", err)
		}
	}

	if backend == "" {
		backend = viper.GetString("backend")
	}
	if backend == "" && configManager != nil {
		backend = configManager.GetDefaultBackend()
	}
	if backend == "" {
		backend = "dashscope"
	}
	backend = strings.ToLower(backend)

	if model == "" {
		model = viper.GetString("model")
	}
	if model == "" && configManager != nil {
		model = configManager.GetDefaultModel()
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Using backend: %s, model: %s\n", backend, displayModel())
	}

	return configManager
}

func displayModel() string {
	if model == "" {
		return "(backend default)"
	}
	return model
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if verbose {
		os.Setenv("SCENETAG_DEBUG", "true")
	}

	configManager := resolveSelection()

	client, err := createClient(backend, model)
	if err != nil {
		printKeyGuidance(backend, err)
		return err
	}
	defer client.Close()

	var opts []classify.Option
	instruction, err := resolvePrompt(configManager)
	if err != nil {
		return err
	}
	if instruction != "" {
		opts = append(opts, classify.WithPrompt(instruction))
	}

	classifier := classify.New(client, opts...)
	ctx := context.Background()

	if len(args) == 1 {
		return analyzeOne(ctx, classifier, args[0])
	}
	return analyzeBatch(ctx, classifier, args)
}

// resolvePrompt returns the instruction override, or "" for the
// embedded default.
func resolvePrompt(configManager *config.Manager) (string, error) {
	path := promptFile
	if path == "" && configManager != nil {
		path = configManager.GetPromptPath()
	}
	if path == "" {
		return "", nil
	}
	return prompt.Load(path)
}

func analyzeOne(ctx context.Context, classifier *classify.Classifier, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *scene.Result
	var classifyErr error

	run := func() error {
		result, classifyErr = classifier.Classify(ctx, path)
		return classifyErr
	}

	if !jsonOut && isatty.IsTerminal(os.Stdout.Fd()) {
		p := tui.NewWait(fmt.Sprintf("Analyzing %s...", path), run, cancel)
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("error running spinner: %w", err)
		}
		// On Ctrl+C the work never finished; result and classifyErr
		// may still be written by the aborted goroutine, so don't
		// touch them.
		if tui.Canceled(final) {
			return fmt.Errorf("analysis canceled for %s", path)
		}
	} else {
		run()
	}

	if classifyErr != nil {
		return renderError(path, classifyErr)
	}
	renderResult(path, result)
	return nil
}

func analyzeBatch(ctx context.Context, classifier *classify.Classifier, paths []string) error {
	items := classifier.ClassifyBatch(ctx, paths, workers)

	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
			renderError(item.Path, item.Err)
			continue
		}
		renderResult(item.Path, item.Result)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(items))
	}
	return nil
}

// renderResult prints one classification, either as raw JSON or as a
// styled flag listing.
func renderResult(path string, result *scene.Result) {
	if result == nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%s: no result", path)))
		return
	}
	if jsonOut {
		out := struct {
			Image string `json:"image"`
			*scene.Result
		}{Image: path, Result: result}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println(pathStyle.Render(path))
	fmt.Println(headerStyle.Render("  Scenarios"))
	for _, it := range result.Scenarios.Items() {
		fmt.Println(renderFlag(it))
	}
	fmt.Println(headerStyle.Render("  Critical objects"))
	for _, it := range result.CriticalObjects.Items() {
		fmt.Println(renderFlag(it))
	}
	fmt.Println()
}

func renderFlag(it scene.Item) string {
	label := fmt.Sprintf("    %-22s %s", it.Key, it.Value)
	if it.Value.Bool() {
		return yesStyle.Render(label)
	}
	return noStyle.Render(label)
}

// renderError reports one failed classification. Parse failures carry
// the raw model text; --json emits the original error-object shape.
func renderError(path string, err error) error {
	var parseErr *scene.ParseError
	if jsonOut {
		if errors.As(err, &parseErr) {
			out := map[string]string{
				"image":        path,
				"error":        parseErr.Reason,
				"raw_response": parseErr.Raw,
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return fmt.Errorf("analysis failed for %s", path)
		}
		out := map[string]string{"image": path, "error": err.Error()}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return fmt.Errorf("analysis failed for %s", path)
	}

	if errors.As(err, &parseErr) {
		fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%s: %s", path, parseErr.Reason)))
		fmt.Fprintf(os.Stderr, "Raw response:\n%s\n", parseErr.Raw)
		return fmt.Errorf("analysis failed for %s", path)
	}
	fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("%s: %v", path, err)))
	return fmt.Errorf("analysis failed for %s", path)
}

func runModels(cmd *cobra.Command, args []string) error {
	if verbose {
		os.Setenv("SCENETAG_DEBUG", "true")
	}

	resolveSelection()

	client, err := createClient(backend, model)
	if err != nil {
		printKeyGuidance(backend, err)
		return err
	}
	defer client.Close()

	models, err := client.ListModels(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	fmt.Printf("Models on %s:\n", backend)
	for _, m := range models {
		marker := " "
		if m.SupportsVision {
			marker = "👁"
		}
		if m.Description != "" {
			fmt.Printf("  %s %-40s %s\n", marker, m.ID, m.Description)
		} else {
			fmt.Printf("  %s %s\n", marker, m.ID)
		}
	}
	return nil
}

func runSetDefaults(cmd *cobra.Command, args []string) error {
	configManager, err := config.NewManager()
	if err != nil {
		return err
	}

	name := strings.ToLower(args[0])
	if _, ok := backendDefaults[name]; !ok {
		return fmt.Errorf("unknown backend: %s", args[0])
	}

	if err := configManager.SetDefaults(name, args[1]); err != nil {
		return err
	}
	fmt.Printf("Defaults saved: backend=%s model=%s\n", name, args[1])
	return nil
}

var backendDefaults = map[string]string{
	"dashscope": "qwen-vl-max-latest",
	"openai":    "gpt-4o",
	"ollama":    "qwen2.5vl",
}

func createClient(backend, model string) (vlm.VisionClient, error) {
	switch strings.ToLower(backend) {
	case "dashscope", "qwen":
		return dashscope.NewClient(vlm.WithModel(modelOrDefault("dashscope", model)))

	case "openai":
		return openai.NewClient(vlm.WithModel(modelOrDefault("openai", model)))

	case "ollama", "local":
		return ollama.NewClient(vlm.WithModel(modelOrDefault("ollama", model)))

	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

func modelOrDefault(backend, model string) string {
	if model != "" {
		return model
	}
	return backendDefaults[backend]
}

// printKeyGuidance walks a first-time user through getting a
// DashScope key when client creation failed for lack of one.
func printKeyGuidance(backend string, err error) {
	if !strings.Contains(err.Error(), "API key not provided") {
		return
	}
	switch strings.ToLower(backend) {
	case "dashscope", "qwen":
		fmt.Fprintln(os.Stderr, "No QWEN_API_KEY found. To set one up:")
		fmt.Fprintln(os.Stderr, "  1. Visit https://dashscope.aliyuncs.com/")
		fmt.Fprintln(os.Stderr, "  2. Register or log in to an Alibaba Cloud account")
		fmt.Fprintln(os.Stderr, "  3. Enable the DashScope service and create an API key")
		fmt.Fprintln(os.Stderr, "  4. export QWEN_API_KEY=your_key_here (or put it in .env)")
	case "openai":
		fmt.Fprintln(os.Stderr, "No OPENAI_API_KEY found. export OPENAI_API_KEY=your_key_here (or put it in .env)")
	}
}
