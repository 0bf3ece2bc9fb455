// form-submit fills a form from the command line and submits it through the
// same controller the site uses, which makes it handy for smoke tests against
// a running forms server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clinic-forms/internal/client"
	commonhttp "clinic-forms/internal/common/http"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
)

var (
	baseURL  string
	timeout  time.Duration
	fields   []string
	files    []string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "form-submit",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Submit clinic forms from the command line",
		Long:              "Fill a clinic form with field values and files, validate it locally and submit it to a forms server",
	}

	sendCmd := &cobra.Command{
		Use:   "send <form>",
		Short: "Validate and submit one form",
		Long: `Validate and submit one form. Repeat --field for list values:

  form-submit send contact --field fullName="John Doe" --field email=john@gmail.com \
    --field phone=+923001234567 --field reason=Team
  form-submit send doctor-registration --file frontPhoto=./me.png --field availableDays=Monday ...`,
		Args: cobra.ExactArgs(1),
		RunE: runSend,
	}
	sendCmd.Flags().StringVarP(&baseURL, "url", "u", "http://localhost:8080", "Forms server base URL")
	sendCmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Request timeout")
	sendCmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Field value as name=value (repeatable)")
	sendCmd.Flags().StringArrayVar(&files, "file", nil, "File upload as name=path (repeatable)")
	sendCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	formsCmd := &cobra.Command{
		Use:   "forms",
		Short: "List the forms and their fields",
		Args:  cobra.NoArgs,
		RunE:  runForms,
	}

	rootCmd.AddCommand(sendCmd, formsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	def, ok := forms.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown form %q (known: %s)", args[0], strings.Join(forms.Names(), ", "))
	}

	values, err := parseFields(fields)
	if err != nil {
		return err
	}
	uploads, err := loadFiles(files)
	if err != nil {
		return err
	}

	log := logger.NewStructured(logLevel, "console")
	ctrl := client.NewController(def, commonhttp.NewClient(baseURL, timeout), client.Options{
		Logger: log,
		OnChange: func(s client.Snapshot) {
			log.Debug("state changed", map[string]interface{}{"state": s.State.String()})
		},
	})
	defer ctrl.Close()

	for name, v := range values {
		ctrl.Set(name, v)
	}
	for name, f := range uploads {
		ctrl.SetFile(name, f)
	}
	if !ctrl.CanSubmit() {
		// Touch every field so the report lists all of them.
		_, _ = ctrl.Submit(cmd.Context())
		printFieldErrors(ctrl.FieldErrors())
		return fmt.Errorf("%s has invalid fields", def.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := ctrl.Submit(ctx)
	snap := ctrl.State()
	fmt.Printf("State:   %s\n", snap.State)
	fmt.Printf("Message: %s\n", snap.Message)
	if snap.ID != "" {
		fmt.Printf("ID:      %s\n", snap.ID)
	}
	if snap.ApplicationID != "" {
		fmt.Printf("App ID:  %s\n", snap.ApplicationID)
	}
	if snap.EmailStatus != "" {
		fmt.Printf("Email:   %s\n", snap.EmailStatus)
	}
	printFieldErrors(ctrl.FieldErrors())

	if err != nil {
		return err
	}
	if snap.State != client.Success {
		if resp != nil && resp.Message != "" {
			return fmt.Errorf("submission rejected: %s", resp.Message)
		}
		return fmt.Errorf("submission rejected")
	}
	return nil
}

func runForms(cmd *cobra.Command, args []string) error {
	for _, def := range forms.All() {
		fmt.Printf("%s (%s)\n", def.Name, def.Title)
		for _, f := range def.Schema.Fields {
			req := ""
			if f.Required {
				req = " *"
			}
			fmt.Printf("  %-22s %s%s\n", f.Name, f.Type, req)
		}
	}
	return nil
}

// parseFields turns name=value pairs into raw values. A name given more than
// once becomes a list; a value that is a JSON array is decoded as one.
func parseFields(pairs []string) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q, expected name=value", p)
		}
		if strings.HasPrefix(value, "[") {
			var list []string
			if err := json.Unmarshal([]byte(value), &list); err == nil {
				values[name] = list
				continue
			}
		}
		switch prev := values[name].(type) {
		case nil:
			values[name] = value
		case string:
			values[name] = []string{prev, value}
		case []string:
			values[name] = append(prev, value)
		}
	}
	return values, nil
}

func loadFiles(pairs []string) (map[string]*validation.FileValue, error) {
	out := map[string]*validation.FileValue{}
	for _, p := range pairs {
		name, path, ok := strings.Cut(p, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --file %q, expected name=path", p)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		out[name] = validation.NewFileValue(filepath.Base(path), "", content)
	}
	return out, nil
}

func printFieldErrors(errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	names := make([]string, 0, len(errs))
	for n := range errs {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Println("Field errors:")
	for _, n := range names {
		fmt.Printf("  %-22s %s\n", n, errs[n])
	}
}
