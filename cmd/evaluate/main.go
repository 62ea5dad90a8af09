// Command evaluate runs the form engine over a template and an answer set without a
// database. Useful for checking template logic while authoring.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/session"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)

		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	switch args[0] {
	case "run":
		return handleRun(args[1:], stdin, stdout, stderr)
	case "lint":
		return handleLint(args[1:], stdin, stdout, stderr)
	default:
		printUsage(stderr)

		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "evaluate - conditional form engine")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  evaluate run -template template.json [-answers answers.json] [-walk]")
	fmt.Fprintln(w, "  evaluate lint [-template template.json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The template is read from stdin when -template is omitted.")
}

// RunResult is printed by the run command.
type RunResult struct {
	Snapshot   *engine.Snapshot   `json:"snapshot"`
	Completion int                `json:"completion_percentage"`
	Session    models.SessionView `json:"session"`
	Path       []string           `json:"path,omitempty"`
	End        bool               `json:"end"`
	NoContent  bool               `json:"no_content"`
}

func handleRun(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	templatePath := fs.String("template", "", "template JSON file (stdin when empty)")
	answersPath := fs.String("answers", "", "answers JSON file, an object of field id to value")
	walk := fs.Bool("walk", false, "advance with next until the end and print the visited sections")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	t, err := readTemplate(*templatePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return 1
	}

	answers := models.AnswerSet{}
	if *answersPath != "" {
		if err := readJSON(*answersPath, nil, &answers); err != nil {
			fmt.Fprintf(stderr, "Error reading answers: %v\n", err)

			return 1
		}
	}

	ctx := context.Background()

	sess := session.New(ctx, t, nil)
	if len(answers) > 0 {
		if err := sess.SetAnswers(ctx, answers); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)

			return 1
		}
	}

	result := RunResult{Snapshot: sess.Snapshot(), Completion: sess.Completion()}

	if *walk {
		pos := sess.Position()
		for !pos.End {
			// jump rules may point backwards
			if len(result.Path) > len(t.Sections) {
				fmt.Fprintf(stderr, "Error: navigation loops: %v\n", result.Path)

				return 1
			}

			result.Path = append(result.Path, pos.SectionID)

			pos, err = sess.Navigate(ctx, engine.DirectionNext)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)

				return 1
			}
		}

		result.End = true
		result.NoContent = pos.NoContent
	}

	result.Session = sess.View()

	return writeJSON(stdout, stderr, result)
}

// LintResult is printed by the lint command.
type LintResult struct {
	Valid       bool                `json:"valid"`
	Diagnostics []engine.Diagnostic `json:"diagnostics"`
}

func handleLint(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	templatePath := fs.String("template", "", "template JSON file (stdin when empty)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	t, err := readTemplate(*templatePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)

		return 1
	}

	diags := engine.Lint(t)
	if diags == nil {
		diags = []engine.Diagnostic{}
	}

	result := LintResult{Valid: !engine.HasErrors(diags), Diagnostics: diags}
	if code := writeJSON(stdout, stderr, result); code != 0 {
		return code
	}

	if !result.Valid {
		return 1
	}

	return 0
}

func readTemplate(path string, stdin io.Reader) (*models.Template, error) {
	var t models.Template
	if err := readJSON(path, stdin, &t); err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	if len(t.Sections) == 0 {
		return nil, errors.New("template has no sections")
	}

	return &t, nil
}

func readJSON(path string, stdin io.Reader, dst any) error {
	var (
		data []byte
		err  error
	)

	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(stdin)
	}

	if err != nil {
		return err //nolint:wrapcheck // callers add context
	}

	return json.Unmarshal(data, dst) //nolint:wrapcheck // callers add context
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error writing output: %v\n", err)

		return 1
	}

	return 0
}
